package delivery_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/delivery-queue/internal/delivery"
	"github.com/notifyhub/delivery-queue/internal/domain"
)

var plainMsg = domain.NotificationMessage{
	To:      "guest@example.com",
	Subject: "Your stay",
	Body:    "See you soon",
}

func TestWebhookBackend_Send_Success(t *testing.T) {
	var got delivery.WebhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b := delivery.NewWebhookBackend(srv.URL, "noreply@example.com", time.Second, nil)
	msg := plainMsg
	msg.Attachments = []domain.Attachment{{Name: "invoice.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}}

	require.NoError(t, b.Send(context.Background(), msg))
	assert.Equal(t, "guest@example.com", got.To)
	assert.Equal(t, "noreply@example.com", got.From)
	assert.Equal(t, "See you soon", got.Text)
	assert.Equal(t, domain.PriorityNormal, got.Priority)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, []byte("%PDF"), got.Attachments[0].Data)
}

func TestWebhookBackend_Send_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := delivery.NewWebhookBackend(srv.URL, "", time.Second, nil)
	err := b.Send(context.Background(), plainMsg)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDelivery)
	assert.Contains(t, err.Error(), "503")
}

func TestWebhookBackend_Send_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := delivery.NewWebhookBackend(url, "", time.Second, nil)
	assert.ErrorIs(t, b.Send(context.Background(), plainMsg), domain.ErrDelivery)
}

func TestWebhookBackend_Send_InvalidMessage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := delivery.NewWebhookBackend(srv.URL, "", time.Second, nil)
	err := b.Send(context.Background(), domain.NotificationMessage{Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, domain.ErrDelivery)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)
	assert.Zero(t, calls, "invalid messages never reach the wire")
}

func TestWebhookBackend_Send_RendersTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome-email.html"),
		[]byte(`<p>Welcome, {{.firstName}}!</p>`), 0o600))
	renderer, err := delivery.NewRenderer(dir)
	require.NoError(t, err)

	var got delivery.WebhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := delivery.NewWebhookBackend(srv.URL, "", time.Second, renderer)
	err = b.Send(context.Background(), domain.NotificationMessage{
		To:                "guest@example.com",
		Subject:           "Welcome to West Bethel Motel!",
		TemplateName:      "welcome-email",
		TemplateVariables: map[string]any{"firstName": "<Ada>"},
		Priority:          domain.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>Welcome, &lt;Ada&gt;!</p>", got.HTML)
	assert.Equal(t, "welcome-email", got.Template)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
}
