// Package httptransport assembles the HTTP surface: public registration and
// payment routes, admin routes behind bearer auth, health and metrics.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	paymenthandler "examreg/internal/payment/handler"
	"examreg/internal/platform/middleware"
	registrationhandler "examreg/internal/registration/handler"
)

// Deps carries everything the router mounts.
type Deps struct {
	Registrations *registrationhandler.Handler
	Payments      *paymenthandler.Handler
	AdminAuth     middleware.TokenValidator
	CORSOrigins   []string
	Logger        *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Razorpay-Signature"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		d.Registrations.RegisterPublic(api)
		d.Payments.RegisterPublic(api)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.RequireAdmin(d.AdminAuth, d.Logger))
			d.Registrations.RegisterAdmin(admin)
			d.Payments.RegisterAdmin(admin)
		})
	})

	return r
}
