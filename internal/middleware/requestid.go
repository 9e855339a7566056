package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID assigns each request an id, honoring one supplied by the caller.
// Error envelopes echo it back so a failing request can be found in the logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}
