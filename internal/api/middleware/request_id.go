// Package middleware provides the HTTP middleware chain: request IDs,
// bearer-token auth, requester propagation, body limits, and access logging.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// RequestID runs first in the chain: it guarantees every request has an
// X-Request-ID in context and in the response headers. A client-supplied ID
// is propagated; otherwise one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}

		ctx := context.WithValue(r.Context(), observability.RequestIDKey, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
