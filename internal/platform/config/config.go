package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr string

	// PostgresURL selects the durable store. Empty means in-memory stores,
	// which is only useful for local development and tests.
	PostgresURL string

	// RedisURL selects the redis-backed sequence allocator. Empty means the
	// counters live in the same store as the registrations.
	RedisURL string

	Razorpay RazorpayConfig

	// AdminJWTKey signs and validates admin bearer tokens. The identity
	// provider issuing them is external; we only verify.
	AdminJWTKey string

	CORSOrigins []string

	// Fees are in paise, matching what the gateway expects.
	FoundationFee int64
	RegularFee    int64

	GatewayTimeout time.Duration
}

// RazorpayConfig holds gateway credentials. KeySecret signs callback
// confirmations, WebhookSecret signs webhook payloads; they are distinct
// secrets on the gateway side.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	addr := os.Getenv("EXAMREG_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminKey := os.Getenv("ADMIN_JWT_KEY")
	if adminKey == "" {
		// Use a default for development - should be overridden in production
		adminKey = "dev-secret-key-change-in-production"
	}

	origins := []string{"*"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	baseURL := os.Getenv("RAZORPAY_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}

	return Config{
		Addr:        addr,
		PostgresURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Razorpay: RazorpayConfig{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
			BaseURL:       baseURL,
		},
		AdminJWTKey:    adminKey,
		CORSOrigins:    origins,
		FoundationFee:  feeFromEnv("FOUNDATION_FEE_PAISE", 50000),
		RegularFee:     feeFromEnv("REGULAR_FEE_PAISE", 50000),
		GatewayTimeout: durationFromEnv("GATEWAY_TIMEOUT", 10*time.Second),
	}
}

func feeFromEnv(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
