package delivery

import (
	"context"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// Backend attempts to deliver one message. Every non-nil error is treated as
// retryable by the queue; implementations mark theirs with domain.DeliveryError.
type Backend interface {
	Send(ctx context.Context, msg domain.NotificationMessage) error
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, msg domain.NotificationMessage) error

func (f BackendFunc) Send(ctx context.Context, msg domain.NotificationMessage) error {
	return f(ctx, msg)
}
