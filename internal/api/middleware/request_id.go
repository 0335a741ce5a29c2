// Package middleware provides the HTTP middleware stack for the cercabus API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDHeader carries the correlation ID between clients, responses, and
// log lines.
const requestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// RequestID attaches a correlation ID to the request context and echoes it in
// the response. A client-supplied X-Request-Id is preserved so retries stay
// traceable end to end; otherwise a fresh ID is minted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}

		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID mints a prefixed ID, same shape as watch IDs.
func newRequestID() string {
	return "req_" + uuid.New().String()[:22]
}

// GetRequestID returns the request's correlation ID, or "" outside the
// middleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
