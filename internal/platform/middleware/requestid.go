package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"examreg/pkg/requestcontext"
)

// RequestID assigns each request a UUID, echoing any X-Request-ID supplied by
// the caller, and exposes it via context and response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
