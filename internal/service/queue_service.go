package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/clock"
	"github.com/notifyhub/delivery-queue/internal/delivery"
	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/queue"
	"github.com/notifyhub/delivery-queue/internal/repository"
)

const (
	tracerName = "github.com/notifyhub/delivery-queue/internal/service"

	// maxStackLen caps the stack summary stored on an item.
	maxStackLen = 4096
)

// Options is the queue's runtime configuration.
type Options struct {
	// Enabled=false turns Enqueue into a synchronous send and ProcessQueue into a no-op.
	Enabled          bool
	MaxAttempts      int
	RetentionTTL     time.Duration
	PriorityOrdering bool
	// SendingLease is how long an item may sit in SENDING before a pass treats
	// its attempt as lost and records it as a failure.
	SendingLease time.Duration
}

// DefaultSendingLease is used when Options.SendingLease is not set.
const DefaultSendingLease = 5 * time.Minute

// errInterrupted is recorded on items reclaimed from a stale SENDING state.
const errInterrupted = "delivery attempt interrupted before its outcome was recorded"

// Hooks carries the metric callback functions injected by main.
// Any of them may be nil.
type Hooks struct {
	OnEnqueued func(priority domain.Priority)
	OnSent     func(priority domain.Priority, latency time.Duration)
	OnRetry    func(priority domain.Priority, attempt int)
	OnFailed   func(priority domain.Priority)
}

func (h *Hooks) fill() {
	if h.OnEnqueued == nil {
		h.OnEnqueued = func(domain.Priority) {}
	}
	if h.OnSent == nil {
		h.OnSent = func(domain.Priority, time.Duration) {}
	}
	if h.OnRetry == nil {
		h.OnRetry = func(domain.Priority, int) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.Priority) {}
	}
}

// Statistics is a per-status count of the store. Read without a snapshot, so
// it is only eventually consistent with a pass running at the same time.
type Statistics struct {
	Queued   int `json:"queued"`
	Sending  int `json:"sending"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Retrying int `json:"retrying"`
	Total    int `json:"total"`
}

// PassReport summarises one ProcessQueue pass.
type PassReport struct {
	Scanned int `json:"scanned"`
	Ready   int `json:"ready"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	// Reclaimed counts stale SENDING items recorded as failed attempts.
	Reclaimed int `json:"reclaimed"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetried
	outcomeFailed
)

// QueueService owns the queued item lifecycle: enqueue, the drain pass,
// backoff, terminal failure and the administrative resets.
// HTTP handlers, the event adapter and the drain worker depend on it.
type QueueService struct {
	store   repository.QueueRecordStore
	backend delivery.Backend
	clock   clock.Clock
	logger  *zap.Logger
	opts    Options
	hooks   Hooks
	tracer  trace.Tracer

	// passMu makes ProcessQueue non-reentrant within this process.
	passMu sync.Mutex
}

func NewQueueService(
	store repository.QueueRecordStore,
	backend delivery.Backend,
	clk clock.Clock,
	logger *zap.Logger,
	opts Options,
	hooks Hooks,
) *QueueService {
	if clk == nil {
		clk = clock.NewReal()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = domain.DefaultMaxAttempts
	}
	if opts.RetentionTTL <= 0 {
		opts.RetentionTTL = domain.DefaultRetentionTTL
	}
	if opts.SendingLease <= 0 {
		opts.SendingLease = DefaultSendingLease
	}
	hooks.fill()
	return &QueueService{
		store:   store,
		backend: backend,
		clock:   clk,
		logger:  logger,
		opts:    opts,
		hooks:   hooks,
		tracer:  otel.Tracer(tracerName),
	}
}

// Enabled reports whether messages are queued or delivered inline.
func (s *QueueService) Enabled() bool { return s.opts.Enabled }

// Enqueue accepts a message for delivery and returns the new item's id.
//
// With the queue disabled the message is validated and sent on the caller's
// goroutine; the id is empty and any validation or delivery error is returned.
// With the queue enabled nothing is validated here: a malformed message fails
// on its first attempt and spends its retry budget like any other failure.
func (s *QueueService) Enqueue(ctx context.Context, msg domain.NotificationMessage) (string, error) {
	msg = msg.WithDefaults()
	if !s.opts.Enabled {
		if err := s.SendDirect(ctx, msg); err != nil {
			return "", err
		}
		return "", nil
	}

	if msg.HasAttachments() {
		s.logger.Warn("attachments are not persisted with queued items and will be dropped",
			zap.String("to", msg.To), zap.Int("attachments", len(msg.Attachments)))
	}

	now := s.clock.Now()
	item := domain.NewQueuedItem(uuid.NewString(), msg, s.opts.MaxAttempts, s.opts.RetentionTTL,
		now, now.Add(queue.Backoff(1)))
	if err := s.store.Save(ctx, item); err != nil {
		return "", err
	}

	s.hooks.OnEnqueued(msg.Priority)
	s.logger.Info("notification queued",
		zap.String("item_id", item.ID),
		zap.String("priority", string(msg.Priority)),
		zap.String("template", msg.TemplateName),
	)
	return item.ID, nil
}

// SendDirect validates and delivers a message immediately, bypassing the store.
func (s *QueueService) SendDirect(ctx context.Context, msg domain.NotificationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		return domain.DeliveryError(err)
	}
	return nil
}

// ProcessQueue runs one drain pass: every QUEUED or RETRYING item whose retry
// time has arrived gets one delivery attempt.
//
// An item left in SENDING for longer than the sending lease (its outcome was
// never written) is first recorded as a failed attempt, so it is retried on
// the backoff schedule or moved to FAILED like any other failure.
//
// A failed attempt (error or backend panic) is recorded on its item and the
// pass moves on. A store error aborts the rest of the pass and is returned.
// A second call while a pass is running returns ErrPassInProgress at once.
func (s *QueueService) ProcessQueue(ctx context.Context) (PassReport, error) {
	var report PassReport
	if !s.opts.Enabled {
		return report, nil
	}
	if !s.passMu.TryLock() {
		return report, domain.ErrPassInProgress
	}
	defer s.passMu.Unlock()

	items, err := s.store.FindByStatus(ctx, domain.StatusQueued, domain.StatusRetrying, domain.StatusSending)
	if err != nil {
		return report, err
	}
	report.Scanned = len(items)

	now := s.clock.Now()
	ready := make([]*domain.QueuedItem, 0, len(items))
	for _, it := range items {
		switch {
		case it.IsStale(now, s.opts.SendingLease):
			out, err := s.reclaim(ctx, it)
			if err != nil {
				s.logger.Error("store error, aborting pass",
					zap.String("item_id", it.ID), zap.Error(err))
				return report, err
			}
			report.Reclaimed++
			if out == outcomeFailed {
				report.Failed++
			} else {
				report.Retried++
			}
		case it.IsReady(now):
			ready = append(ready, it)
		}
	}
	if s.opts.PriorityOrdering {
		list := queue.NewReadyList()
		for _, it := range ready {
			list.Push(it)
		}
		ready = list.Drain()
	}
	report.Ready = len(ready)

	for _, it := range ready {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out, err := s.attempt(ctx, it)
		if err != nil {
			s.logger.Error("store error, aborting pass",
				zap.String("item_id", it.ID), zap.Error(err))
			return report, err
		}
		switch out {
		case outcomeSent:
			report.Sent++
		case outcomeRetried:
			report.Retried++
		case outcomeFailed:
			report.Failed++
		}
	}

	if report.Ready > 0 || report.Reclaimed > 0 {
		s.logger.Info("queue pass complete",
			zap.Int("ready", report.Ready),
			zap.Int("reclaimed", report.Reclaimed),
			zap.Int("sent", report.Sent),
			zap.Int("retried", report.Retried),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// attempt makes one delivery attempt for it. The returned error is always a
// store error; delivery failures are recorded on the item.
func (s *QueueService) attempt(ctx context.Context, it *domain.QueuedItem) (outcome, error) {
	priority := it.Message.Priority
	log := s.logger.With(
		zap.String("item_id", it.ID),
		zap.String("priority", string(priority)),
	)

	// Reached when max attempts was lowered after the item was queued.
	if it.AttemptCount >= it.MaxAttempts {
		errMsg := "attempt budget exhausted"
		if it.ErrorMessage != nil {
			errMsg = *it.ErrorMessage
		}
		it.MarkFailed(s.clock.Now(), errMsg, "")
		if err := s.store.Save(ctx, it); err != nil {
			return 0, err
		}
		s.hooks.OnFailed(priority)
		log.Warn("notification failed without a new attempt", zap.Int("attempt", it.AttemptCount))
		return outcomeFailed, nil
	}

	ctx, span := s.tracer.Start(ctx, "queue.attempt", trace.WithAttributes(
		attribute.String("queue.item_id", it.ID),
		attribute.String("queue.priority", string(priority)),
		attribute.String("queue.template", it.Message.TemplateName),
		attribute.Int("queue.attempt", it.AttemptCount+1),
	))
	defer span.End()

	start := s.clock.Now()
	it.BeginAttempt(start)
	if err := s.store.Save(ctx, it); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store")
		return 0, err
	}

	sendErr := s.send(ctx, it.Message)
	now := s.clock.Now()

	if sendErr == nil {
		it.MarkSent(now)
		if err := s.store.Save(ctx, it); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store")
			return 0, err
		}
		latency := now.Sub(start)
		s.hooks.OnSent(priority, latency)
		span.SetStatus(codes.Ok, "")
		log.Info("notification sent", zap.Int("attempt", it.AttemptCount), zap.Duration("latency", latency))
		return outcomeSent, nil
	}

	span.RecordError(sendErr)
	span.SetStatus(codes.Error, "delivery")

	return s.recordFailure(ctx, it, now, sendErr.Error(), stackSummary(sendErr), log, sendErr)
}

// reclaim records the lost attempt of a stale SENDING item as a failure.
// The attempt was already counted by BeginAttempt.
func (s *QueueService) reclaim(ctx context.Context, it *domain.QueuedItem) (outcome, error) {
	log := s.logger.With(
		zap.String("item_id", it.ID),
		zap.String("priority", string(it.Message.Priority)),
	)
	log.Warn("reclaiming item stuck in SENDING", zap.Timep("last_attempt_at", it.LastAttemptAt))
	return s.recordFailure(ctx, it, s.clock.Now(), errInterrupted, "", log, errors.New(errInterrupted))
}

// recordFailure schedules the next attempt on the backoff table, or marks the
// item FAILED once its attempts are spent, and persists the result.
func (s *QueueService) recordFailure(
	ctx context.Context,
	it *domain.QueuedItem,
	now time.Time,
	errMsg, stack string,
	log *zap.Logger,
	cause error,
) (outcome, error) {
	priority := it.Message.Priority
	if it.AttemptCount < it.MaxAttempts {
		next := queue.NextRetryAt(now, it.AttemptCount)
		it.ScheduleRetry(next, errMsg, stack)
		if err := s.store.Save(ctx, it); err != nil {
			return 0, err
		}
		s.hooks.OnRetry(priority, it.AttemptCount)
		log.Warn("delivery failed, retry scheduled",
			zap.Error(cause),
			zap.Int("attempt", it.AttemptCount),
			zap.Int("max_attempts", it.MaxAttempts),
			zap.Time("retry_at", next),
		)
		return outcomeRetried, nil
	}

	it.MarkFailed(now, errMsg, stack)
	if err := s.store.Save(ctx, it); err != nil {
		return 0, err
	}
	s.hooks.OnFailed(priority)
	log.Error("delivery failed permanently",
		zap.Error(cause),
		zap.Int("attempt", it.AttemptCount),
	)
	return outcomeFailed, nil
}

// send calls the backend and turns a panic into a delivery error.
func (s *QueueService) send(ctx context.Context, msg domain.NotificationMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.DeliveryError(errors.Newf("delivery backend panic: %v", r))
		}
	}()
	return s.backend.Send(ctx, msg)
}

// RetryFailed resets every FAILED item to QUEUED with a fresh attempt budget
// and returns how many were reset.
func (s *QueueService) RetryFailed(ctx context.Context) (int, error) {
	failed, err := s.store.FindByStatus(ctx, domain.StatusFailed)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	n := 0
	for _, it := range failed {
		it.ResetForRetry(now)
		if err := s.store.Save(ctx, it); err != nil {
			return n, err
		}
		n++
	}
	s.logger.Info("failed notifications reset for retry", zap.Int("count", n))
	return n, nil
}

// RetryItem resets one FAILED item. A missing item or one in any other status
// is left alone and no error is returned.
func (s *QueueService) RetryItem(ctx context.Context, id string) error {
	it, err := s.store.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if it.Status != domain.StatusFailed {
		return nil
	}

	it.ResetForRetry(s.clock.Now())
	if err := s.store.Save(ctx, it); err != nil {
		return err
	}
	s.logger.Info("notification reset for retry", zap.String("item_id", id))
	return nil
}

func (s *QueueService) GetStatistics(ctx context.Context) (Statistics, error) {
	items, err := s.store.FindAll(ctx)
	if err != nil {
		return Statistics{}, err
	}

	var st Statistics
	for _, it := range items {
		switch it.Status {
		case domain.StatusQueued:
			st.Queued++
		case domain.StatusSending:
			st.Sending++
		case domain.StatusSent:
			st.Sent++
		case domain.StatusFailed:
			st.Failed++
		case domain.StatusRetrying:
			st.Retrying++
		default:
			continue
		}
		st.Total++
	}
	return st, nil
}

// GetQueuedItems returns every item still waiting for an attempt (QUEUED or RETRYING).
func (s *QueueService) GetQueuedItems(ctx context.Context) ([]*domain.QueuedItem, error) {
	return s.store.FindByStatus(ctx, domain.StatusQueued, domain.StatusRetrying)
}

func (s *QueueService) GetFailedItems(ctx context.Context) ([]*domain.QueuedItem, error) {
	return s.store.FindByStatus(ctx, domain.StatusFailed)
}

// GetItem returns domain.ErrNotFound for a missing or expired id.
func (s *QueueService) GetItem(ctx context.Context, id string) (*domain.QueuedItem, error) {
	return s.store.GetByID(ctx, id)
}

// DeleteItem removes an item from future consideration. Deleting a missing id succeeds.
func (s *QueueService) DeleteItem(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("notification deleted", zap.String("item_id", id))
	return nil
}

// Ping checks that the store is reachable.
func (s *QueueService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// stackSummary renders err with its recorded stack, or "" when it carries none.
func stackSummary(err error) string {
	verbose := fmt.Sprintf("%+v", err)
	if verbose == err.Error() {
		return ""
	}
	return truncateUTF8(verbose, maxStackLen)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
