package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/notifyhub/delivery-queue/internal/api/handler"
	"github.com/notifyhub/delivery-queue/internal/domain"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"store reachable", nil, http.StatusOK},
		{"store down", domain.StoreError(errors.New("connection refused"), "ping redis"), http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := handler.NewHealthHandler(pingerFunc(func(context.Context) error { return tc.err }))
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
