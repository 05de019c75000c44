package middleware

import (
	"net/http"

	"github.com/google/uuid"

	sharedcontext "libris-backend/internal/context"
)

// RequestIDHeader carries the correlation id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with a correlation id. An inbound id is
// kept so gateway-assigned ids survive the hop; otherwise one is minted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(sharedcontext.WithRequestID(r.Context(), requestID)))
	})
}
