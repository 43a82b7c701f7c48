package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/repository"
)

// PurgeWorker deletes items whose retention TTL has elapsed, for stores that
// do not expire records by themselves.
type PurgeWorker struct {
	store    repository.Expirer
	interval time.Duration
	logger   *zap.Logger
	onPurged func(n int64)
}

func NewPurgeWorker(store repository.Expirer, interval time.Duration, logger *zap.Logger, onPurged func(int64)) *PurgeWorker {
	if onPurged == nil {
		onPurged = func(int64) {}
	}
	return &PurgeWorker{store: store, interval: interval, logger: logger, onPurged: onPurged}
}

// Run ticks every interval and purges expired items.
// Stops cleanly when ctx is cancelled.
func (pw *PurgeWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	pw.logger.Info("purge worker started", zap.Duration("interval", pw.interval))

	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("purge worker stopping")
			return nil
		case <-ticker.C:
			pw.purge(ctx)
		}
	}
}

func (pw *PurgeWorker) purge(ctx context.Context) {
	n, err := pw.store.PurgeExpired(ctx)
	if err != nil {
		pw.logger.Error("purge error", zap.Error(err))
		return
	}
	pw.onPurged(n)
	if n > 0 {
		pw.logger.Info("purged expired items", zap.Int64("count", n))
	}
}
