package httpserver

import (
	"net/http"
	"time"
)

// New builds the registration service's HTTP server. The generous write
// timeout leaves headroom for the admin reconciliation sweep, which fans out
// gateway queries before responding.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}
}
