package delivery

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/ratelimiter"
)

// RateLimited waits for a token from the message's priority tier before
// handing it to the wrapped backend.
type RateLimited struct {
	next     Backend
	limiters *ratelimiter.PriorityLimiters
}

func NewRateLimited(next Backend, limiters *ratelimiter.PriorityLimiters) *RateLimited {
	return &RateLimited{next: next, limiters: limiters}
}

func (r *RateLimited) Send(ctx context.Context, msg domain.NotificationMessage) error {
	if err := r.limiters.Wait(ctx, msg.WithDefaults().Priority); err != nil {
		return domain.DeliveryError(errors.Wrap(err, "wait for rate limiter"))
	}
	return r.next.Send(ctx, msg)
}

var _ Backend = (*RateLimited)(nil)
