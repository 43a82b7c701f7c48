package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Headers checked for an inbound correlation id, in order.
var correlationHeaders = []string{"X-Correlation-ID", "X-Request-ID"}

// CorrelationID takes the caller's correlation id (or generates a UUID),
// stores it on the request context and echoes it in X-Correlation-ID so a
// notification can be traced from the caller through queue logs.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		for _, h := range correlationHeaders {
			if id = r.Header.Get(h); id != "" {
				break
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), id)))
	})
}

// WithCorrelationID returns a copy of ctx carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID stored by the middleware.
// Returns an empty string if the middleware was not applied.
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
