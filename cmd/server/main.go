package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"examreg/internal/payment/gateway"
	paymenthandler "examreg/internal/payment/handler"
	"examreg/internal/payment/reconcile"
	"examreg/internal/platform/config"
	"examreg/internal/platform/httpserver"
	"examreg/internal/platform/logger"
	"examreg/internal/platform/metrics"
	"examreg/internal/platform/middleware"
	"examreg/internal/platform/redis"
	registrationhandler "examreg/internal/registration/handler"
	"examreg/internal/registration/receipt"
	"examreg/internal/registration/service"
	"examreg/internal/registration/store"
	"examreg/internal/sequence"
	httptransport "examreg/internal/transport/http"
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var (
		registrations store.Store
		counters      sequence.Store
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		for _, schema := range []string{sequence.Schema, store.Schema} {
			if _, err := db.Exec(schema); err != nil {
				log.Error("apply schema", "error", err)
				os.Exit(1)
			}
		}
		registrations = store.NewPostgres(db)
		counters = sequence.NewPostgres(db)
		log.Info("using postgres store")
	} else {
		registrations = store.NewInMemory()
		counters = sequence.NewInMemory()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL != "" {
		rdb, err := redis.New(cfg.RedisURL)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		counters = sequence.NewRedis(rdb.Client)
		log.Info("using redis sequence allocator")
	}

	allocator := sequence.NewAllocator(counters)
	receipts := receipt.NewGenerator(allocator)
	m := metrics.New()

	var gw gateway.Gateway
	if cfg.Razorpay.KeyID != "" {
		gw = gateway.NewRazorpayClient(cfg.Razorpay.BaseURL, cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.GatewayTimeout)
	} else {
		gw = gateway.NewFake()
		log.Warn("RAZORPAY_KEY_ID not set, using fake payment gateway")
	}

	coordinator := reconcile.New(registrations, gw, receipts, reconcile.Secrets{
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
	}, m, log)

	svc := service.New(registrations, allocator, receipts, service.Fees{
		Foundation: cfg.FoundationFee,
		Regular:    cfg.RegularFee,
	}, m, log)
	svc.SetPaidMarker(coordinator)

	router := httptransport.NewRouter(httptransport.Deps{
		Registrations: registrationhandler.New(svc, log),
		Payments:      paymenthandler.New(coordinator, log),
		AdminAuth:     middleware.NewHS256Validator(cfg.AdminJWTKey),
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        log,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting examreg server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
