package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/api"
	"github.com/notifyhub/delivery-queue/internal/clock"
	"github.com/notifyhub/delivery-queue/internal/delivery"
	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/events"
	"github.com/notifyhub/delivery-queue/internal/metrics"
	"github.com/notifyhub/delivery-queue/internal/repository"
	"github.com/notifyhub/delivery-queue/internal/service"
)

const failingRecipient = "bounce@example.com"

type testServer struct {
	handler http.Handler
	svc     *service.QueueService
	sent    *[]string
}

func newTestServer(t *testing.T, opts service.Options) testServer {
	t.Helper()
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clk)
	var sent []string
	backend := delivery.BackendFunc(func(_ context.Context, msg domain.NotificationMessage) error {
		if msg.To == failingRecipient {
			return errors.New("mailbox unavailable")
		}
		sent = append(sent, msg.To)
		return nil
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := service.NewQueueService(store, backend, clk, zap.NewNop(), opts, m.ServiceHooks())
	adapter := events.NewAdapter(svc, nil, zap.NewNop())
	return testServer{handler: api.NewRouter(svc, adapter, reg, zap.NewNop()), svc: svc, sent: &sent}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type itemList struct {
	Data  []domain.QueuedItem `json:"data"`
	Total int                 `json:"total"`
}

func message(to string) map[string]any {
	return map[string]any{"to": to, "subject": "Booking Confirmation - WB-1001", "body": "Thanks"}
}

func TestRouter_EnqueueAndDrain(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: true})

	rec := s.do(t, http.MethodPost, "/api/v1/notifications", message("guest@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]string](t, rec)["id"]
	require.NotEmpty(t, id)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	rec = s.do(t, http.MethodGet, "/api/v1/admin/notifications/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[itemList](t, rec).Total)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/notifications/queue/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusQueued, decode[domain.QueuedItem](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/notifications/queue/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[service.PassReport](t, rec).Sent)
	assert.Equal(t, []string{"guest@example.com"}, *s.sent)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/notifications/queue/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[service.Statistics](t, rec)
	assert.Equal(t, 1, st.Sent)
	assert.Equal(t, 1, st.Total)
}

func TestRouter_InlineDelivery(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: false})

	rec := s.do(t, http.MethodPost, "/api/v1/notifications", message("guest@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[map[string]bool](t, rec)["delivered"])

	rec = s.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{"to": "guest@example.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/notifications", message(failingRecipient))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRouter_BadJSON(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: true})
	rec := s.do(t, http.MethodPost, "/api/v1/notifications", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_FailedItemsAndRetry(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: true, MaxAttempts: 1})

	rec := s.do(t, http.MethodPost, "/api/v1/notifications", message(failingRecipient))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]string](t, rec)["id"]

	rec = s.do(t, http.MethodPost, "/api/v1/admin/notifications/queue/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[service.PassReport](t, rec).Failed)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/notifications/failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[itemList](t, rec)
	require.Equal(t, 1, failed.Total)
	assert.Equal(t, id, failed.Data[0].ID)
	require.NotNil(t, failed.Data[0].ErrorMessage)
	assert.Contains(t, *failed.Data[0].ErrorMessage, "mailbox unavailable")

	rec = s.do(t, http.MethodPost, "/api/v1/admin/notifications/retry/"+id, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/notifications/queue/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	it := decode[domain.QueuedItem](t, rec)
	assert.Equal(t, domain.StatusQueued, it.Status)
	assert.Zero(t, it.AttemptCount)

	// Fail it again, then reset everything at once.
	s.do(t, http.MethodPost, "/api/v1/admin/notifications/queue/process", nil)
	rec = s.do(t, http.MethodPost, "/api/v1/admin/notifications/retry-all", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["retried"])

	rec = s.do(t, http.MethodGet, "/api/v1/admin/notifications/failed", nil)
	assert.Equal(t, 0, decode[itemList](t, rec).Total)
}

func TestRouter_DeleteItem(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: true})
	rec := s.do(t, http.MethodPost, "/api/v1/notifications", message("guest@example.com"))
	id := decode[map[string]string](t, rec)["id"]

	rec = s.do(t, http.MethodDelete, "/api/v1/admin/notifications/queue/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/notifications/queue/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_TestSend(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: true})

	rec := s.do(t, http.MethodPost, "/api/v1/admin/notifications/test", message("ops@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ops@example.com"}, *s.sent)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/notifications/test", map[string]any{"subject": "x", "body": "y"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/notifications/test", message(failingRecipient))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	st, err := s.svc.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Total)
}

func TestRouter_Events(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: true})

	rec := s.do(t, http.MethodPost, "/api/v1/events", events.Event{
		Kind:  events.KindBookingCreated,
		Email: "guest@example.com",
		Data:  map[string]any{"confirmationNumber": "WB-1001"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id, _ := decode[map[string]any](t, rec)["id"].(string)
	require.NotEmpty(t, id)

	it, err := s.svc.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "booking-confirmation", it.Message.TemplateName)
	assert.Equal(t, "Booking Confirmation - WB-1001", it.Message.Subject)

	rec = s.do(t, http.MethodPost, "/api/v1/events", events.Event{Kind: "room.cleaned", Email: "guest@example.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/events", "[1,2")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, service.Options{Enabled: true})

	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	s.do(t, http.MethodPost, "/api/v1/notifications", message("guest@example.com"))
	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notifications_enqueued_total")
}
