package delivery

import (
	"context"

	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// LogBackend "delivers" by writing the rendered message to the log. It is the
// default when no webhook is configured.
type LogBackend struct {
	renderer *Renderer
	log      *zap.Logger
}

func NewLogBackend(renderer *Renderer, log *zap.Logger) *LogBackend {
	if renderer == nil {
		renderer = &Renderer{}
	}
	return &LogBackend{renderer: renderer, log: log}
}

func (b *LogBackend) Send(_ context.Context, msg domain.NotificationMessage) error {
	if err := msg.Validate(); err != nil {
		return domain.DeliveryError(err)
	}
	rendered, err := b.renderer.Render(msg)
	if err != nil {
		return domain.DeliveryError(err)
	}
	b.log.Info("notification delivered to log",
		zap.String("to", rendered.To),
		zap.String("subject", rendered.Subject),
		zap.String("template", rendered.TemplateName),
		zap.String("priority", string(rendered.WithDefaults().Priority)),
		zap.Int("body_bytes", len(rendered.Body)+len(rendered.HTMLBody)),
		zap.Int("attachments", len(rendered.Attachments)),
	)
	return nil
}

var _ Backend = (*LogBackend)(nil)
