package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// PriorityLimiters holds one token bucket limiter per priority tier, so a
// flood of LOW messages cannot starve URGENT ones of backend capacity.
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type PriorityLimiters struct {
	limiters map[domain.Priority]*rate.Limiter
}

// New creates a PriorityLimiters with ratePerSec tokens per second per tier.
// ratePerSec <= 0 yields limiters that never block.
func New(ratePerSec int) *PriorityLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec
	if ratePerSec <= 0 {
		r = rate.Inf
		burst = 0
	}

	limiters := make(map[domain.Priority]*rate.Limiter, len(domain.Priorities))
	for _, p := range domain.Priorities {
		limiters[p] = rate.NewLimiter(r, burst)
	}
	return &PriorityLimiters{limiters: limiters}
}

// Wait blocks until the tier's limiter grants a token. Unknown priorities
// share the NORMAL bucket. Returns a non-nil error only if ctx is cancelled
// (or its deadline is too close) while waiting.
func (pl *PriorityLimiters) Wait(ctx context.Context, p domain.Priority) error {
	l, ok := pl.limiters[p]
	if !ok {
		l = pl.limiters[domain.PriorityNormal]
	}
	return l.Wait(ctx)
}
