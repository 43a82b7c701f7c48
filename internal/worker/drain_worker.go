package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/service"
)

// Pass results reported through DrainHooks.OnPass.
const (
	PassOK         = "ok"
	PassStoreError = "store_error"
	PassSkipped    = "skipped"
)

// Drainer is the part of service.QueueService the drain loop drives.
type Drainer interface {
	ProcessQueue(ctx context.Context) (service.PassReport, error)
	GetStatistics(ctx context.Context) (service.Statistics, error)
}

// DrainHooks carries the metric callback functions injected by main.
// Using a struct keeps the worker constructor signature clean.
type DrainHooks struct {
	OnPass       func(result string)
	OnStatistics func(st service.Statistics)
}

// DrainWorker runs one queue pass every interval. Delivery state lives in
// the store, so a restart loses nothing: the next pass picks up every due item.
type DrainWorker struct {
	svc      Drainer
	interval time.Duration
	logger   *zap.Logger
	hooks    DrainHooks
}

func NewDrainWorker(svc Drainer, interval time.Duration, logger *zap.Logger, hooks DrainHooks) *DrainWorker {
	if hooks.OnPass == nil {
		hooks.OnPass = func(string) {}
	}
	if hooks.OnStatistics == nil {
		hooks.OnStatistics = func(service.Statistics) {}
	}
	return &DrainWorker{svc: svc, interval: interval, logger: logger, hooks: hooks}
}

// Run ticks every interval and drains due items.
// Stops cleanly when ctx is cancelled; an in-flight pass finishes its current item first.
func (dw *DrainWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(dw.interval)
	defer ticker.Stop()

	dw.logger.Info("drain worker started", zap.Duration("interval", dw.interval))

	for {
		select {
		case <-ctx.Done():
			dw.logger.Info("drain worker stopping")
			return nil
		case <-ticker.C:
			dw.Tick(ctx)
		}
	}
}

// Tick runs a single pass and publishes statistics. Errors are logged, never returned.
func (dw *DrainWorker) Tick(ctx context.Context) {
	_, err := dw.svc.ProcessQueue(ctx)
	switch {
	case err == nil:
		dw.hooks.OnPass(PassOK)
	case errors.Is(err, domain.ErrPassInProgress):
		dw.hooks.OnPass(PassSkipped)
		dw.logger.Debug("previous pass still running, skipping tick")
	case ctx.Err() != nil:
		return
	default:
		dw.hooks.OnPass(PassStoreError)
		dw.logger.Error("queue pass aborted", zap.Error(err))
	}

	st, err := dw.svc.GetStatistics(ctx)
	if err != nil {
		dw.logger.Warn("could not read queue statistics", zap.Error(err))
		return
	}
	dw.hooks.OnStatistics(st)
}
