package domain

import "time"

// Status tracks the lifecycle of a queued item.
type Status string

const (
	StatusQueued   Status = "QUEUED"
	StatusSending  Status = "SENDING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
	StatusRetrying Status = "RETRYING"
)

// Statuses lists every status in a stable order.
var Statuses = []Status{StatusQueued, StatusSending, StatusSent, StatusFailed, StatusRetrying}

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether the drain loop will never touch an item in this status again.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

const (
	DefaultMaxAttempts  = 5
	DefaultRetentionTTL = 7 * 24 * time.Hour
)

// QueuedItem is the durable record tracking delivery attempts for one message.
// The store owns it; the message is embedded by value.
type QueuedItem struct {
	ID              string              `json:"id"`
	Message         NotificationMessage `json:"message"`
	AttemptCount    int                 `json:"attempt_count"`
	MaxAttempts     int                 `json:"max_attempts"`
	Status          Status              `json:"status"`
	QueuedAt        time.Time           `json:"queued_at"`
	LastAttemptAt   *time.Time          `json:"last_attempt_at,omitempty"`
	RetryAt         *time.Time          `json:"retry_at,omitempty"`
	ErrorMessage    *string             `json:"error_message,omitempty"`
	ErrorStackTrace *string             `json:"error_stack_trace,omitempty"`
	TTL             time.Duration       `json:"ttl"`
}

// NewQueuedItem builds a fresh item that is eligible at retryAt.
func NewQueuedItem(id string, msg NotificationMessage, maxAttempts int, ttl time.Duration, now, retryAt time.Time) *QueuedItem {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if ttl <= 0 {
		ttl = DefaultRetentionTTL
	}
	it := &QueuedItem{
		ID:          id,
		Message:     msg,
		MaxAttempts: maxAttempts,
		Status:      StatusQueued,
		QueuedAt:    now,
		TTL:         ttl,
	}
	it.setRetryAt(retryAt)
	return it
}

// IsReady reports whether a QUEUED or RETRYING item may be attempted at now.
func (it *QueuedItem) IsReady(now time.Time) bool {
	if it.Status != StatusQueued && it.Status != StatusRetrying {
		return false
	}
	return it.RetryAt == nil || !it.RetryAt.After(now)
}

// IsStale reports whether a SENDING item has held that state for at least
// lease, meaning the outcome of its attempt was never written.
func (it *QueuedItem) IsStale(now time.Time, lease time.Duration) bool {
	if it.Status != StatusSending {
		return false
	}
	return it.LastAttemptAt == nil || !now.Before(it.LastAttemptAt.Add(lease))
}

// CanRetry reports whether another attempt is allowed after a failure.
func (it *QueuedItem) CanRetry() bool {
	return it.AttemptCount < it.MaxAttempts && it.Status != StatusSent
}

func (it *QueuedItem) IsTerminal() bool {
	return it.Status.IsTerminal()
}

// BeginAttempt moves the item to SENDING and counts the attempt.
func (it *QueuedItem) BeginAttempt(now time.Time) {
	it.Status = StatusSending
	it.AttemptCount++
	it.LastAttemptAt = &now
}

func (it *QueuedItem) MarkSent(now time.Time) {
	it.Status = StatusSent
	it.LastAttemptAt = &now
}

// ScheduleRetry records a failed attempt that will be tried again at retryAt.
func (it *QueuedItem) ScheduleRetry(retryAt time.Time, errMsg, stack string) {
	it.Status = StatusRetrying
	it.setRetryAt(retryAt)
	it.setError(errMsg, stack)
}

// MarkFailed records the final failed attempt.
func (it *QueuedItem) MarkFailed(now time.Time, errMsg, stack string) {
	it.Status = StatusFailed
	it.LastAttemptAt = &now
	it.setError(errMsg, stack)
}

// ResetForRetry puts a FAILED item back at the head of the line with a fresh budget.
func (it *QueuedItem) ResetForRetry(now time.Time) {
	it.Status = StatusQueued
	it.AttemptCount = 0
	it.ErrorMessage = nil
	it.ErrorStackTrace = nil
	it.setRetryAt(now)
}

// setRetryAt never moves RetryAt backwards.
func (it *QueuedItem) setRetryAt(t time.Time) {
	if it.RetryAt != nil && t.Before(*it.RetryAt) {
		return
	}
	it.RetryAt = &t
}

func (it *QueuedItem) setError(msg, stack string) {
	it.ErrorMessage = &msg
	if stack == "" {
		it.ErrorStackTrace = nil
		return
	}
	it.ErrorStackTrace = &stack
}

// Clone returns a deep-enough copy for stores that hand out values.
func (it *QueuedItem) Clone() *QueuedItem {
	c := *it
	if it.LastAttemptAt != nil {
		t := *it.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if it.RetryAt != nil {
		t := *it.RetryAt
		c.RetryAt = &t
	}
	if it.ErrorMessage != nil {
		s := *it.ErrorMessage
		c.ErrorMessage = &s
	}
	if it.ErrorStackTrace != nil {
		s := *it.ErrorStackTrace
		c.ErrorStackTrace = &s
	}
	if it.Message.TemplateVariables != nil {
		vars := make(map[string]any, len(it.Message.TemplateVariables))
		for k, v := range it.Message.TemplateVariables {
			vars[k] = v
		}
		c.Message.TemplateVariables = vars
	}
	return &c
}
