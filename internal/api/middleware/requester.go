package middleware

import (
	"context"
	"net/http"

	"github.com/testvault/portal/internal/observability"
)

const requesterIDHeader = "X-Requester-ID"

// Requester copies the X-Requester-ID header into context so every log line
// for the request carries the requester. Handlers that need the identity
// still validate it themselves; absence is not an error here.
func Requester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(requesterIDHeader); id != "" {
			ctx := context.WithValue(r.Context(), observability.RequesterKey, id)
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(w, r)
	})
}
