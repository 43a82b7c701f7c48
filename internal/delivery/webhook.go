package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// WebhookRequest is the JSON body posted to the delivery webhook.
type WebhookRequest struct {
	To                      string              `json:"to"`
	Cc                      []string            `json:"cc,omitempty"`
	Bcc                     []string            `json:"bcc,omitempty"`
	From                    string              `json:"from"`
	ReplyTo                 string              `json:"reply_to,omitempty"`
	Subject                 string              `json:"subject"`
	Text                    string              `json:"text,omitempty"`
	HTML                    string              `json:"html,omitempty"`
	Template                string              `json:"template,omitempty"`
	Priority                domain.Priority     `json:"priority"`
	RequiresDeliveryReceipt bool                `json:"requires_delivery_receipt,omitempty"`
	Attachments             []WebhookAttachment `json:"attachments,omitempty"`
}

type WebhookAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// WebhookBackend delivers messages by POSTing them to an HTTP endpoint (a
// mail relay, an SMS gateway bridge, webhook.site while developing).
// The URL is injected from config so tests can point to a local server.
type WebhookBackend struct {
	url         string
	defaultFrom string
	renderer    *Renderer
	httpClient  *http.Client
}

// NewWebhookBackend builds a backend whose only per-attempt timeout is the
// HTTP client's.
func NewWebhookBackend(url, defaultFrom string, timeout time.Duration, renderer *Renderer) *WebhookBackend {
	if renderer == nil {
		renderer = &Renderer{}
	}
	return &WebhookBackend{
		url:         url,
		defaultFrom: defaultFrom,
		renderer:    renderer,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send validates and renders the message, then posts it and expects any 2xx.
func (b *WebhookBackend) Send(ctx context.Context, msg domain.NotificationMessage) error {
	if err := msg.Validate(); err != nil {
		return domain.DeliveryError(err)
	}
	rendered, err := b.renderer.Render(msg)
	if err != nil {
		return domain.DeliveryError(errors.Wrap(err, "render message"))
	}

	body, err := json.Marshal(b.request(rendered))
	if err != nil {
		return domain.DeliveryError(errors.Wrap(err, "marshal request"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return domain.DeliveryError(errors.Wrap(err, "create request"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return domain.DeliveryError(errors.Wrap(err, "send request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.DeliveryError(errors.Newf("unexpected webhook status: %d", resp.StatusCode))
	}
	return nil
}

func (b *WebhookBackend) request(msg domain.NotificationMessage) WebhookRequest {
	from := msg.From
	if from == "" {
		from = b.defaultFrom
	}
	req := WebhookRequest{
		To:                      msg.To,
		Cc:                      msg.Cc,
		Bcc:                     msg.Bcc,
		From:                    from,
		ReplyTo:                 msg.ReplyTo,
		Subject:                 msg.Subject,
		Text:                    msg.Body,
		HTML:                    msg.HTMLBody,
		Template:                msg.TemplateName,
		Priority:                msg.WithDefaults().Priority,
		RequiresDeliveryReceipt: msg.RequiresDeliveryReceipt,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, WebhookAttachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Data:        a.Data,
		})
	}
	return req
}

// compile-time check that WebhookBackend implements Backend
var _ Backend = (*WebhookBackend)(nil)
