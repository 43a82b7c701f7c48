package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound       = errors.New("not found")
	ErrPassInProgress = errors.New("a queue processing pass is already running")
	ErrUnknownEvent   = errors.New("unknown event kind")

	// ErrValidation marks every malformed-message error. Surfaced to callers only
	// when the queue is disabled; otherwise it is consumed as a delivery failure.
	ErrValidation = errors.New("invalid notification message")
	// ErrDelivery marks failures returned by a delivery backend. Always retryable.
	ErrDelivery = errors.New("delivery failed")
	// ErrStore marks persistence failures.
	ErrStore = errors.New("queue store unavailable")

	ErrInvalidRecipient = Mark(errors.New("recipient must not be empty"), ErrValidation)
	ErrMissingSubject   = Mark(errors.New("subject is required unless a template is used"), ErrValidation)
	ErrMissingContent   = Mark(errors.New("body, html body or template is required"), ErrValidation)
	ErrInvalidVariables = Mark(errors.New("template variables must have non-empty keys"), ErrValidation)
	ErrInvalidPriority  = Mark(errors.New("invalid priority: must be LOW, NORMAL, HIGH or URGENT"), ErrValidation)
)

// kindError tags cause with a category sentinel. The message is the cause's;
// Is matches the category and Unwrap keeps the cause chain reachable, so both
// the standard library and cockroachdb errors.Is see the category and the cause.
type kindError struct {
	cause error
	kind  error
}

func (e *kindError) Error() string { return e.cause.Error() }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

// FormatError lets %+v print the cause's stack trace.
func (e *kindError) FormatError(p errors.Printer) error { return e.cause }

func (e *kindError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// Mark tags err with the category sentinel kind. Mark(nil, kind) is nil.
func Mark(err, kind error) error {
	if err == nil {
		return nil
	}
	return &kindError{cause: err, kind: kind}
}

// DeliveryError wraps a backend failure so errors.Is(err, ErrDelivery) holds.
func DeliveryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDelivery) {
		return err
	}
	return Mark(err, ErrDelivery)
}

// StoreError wraps a persistence failure so errors.Is(err, ErrStore) holds.
func StoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	return Mark(errors.Wrap(err, op), ErrStore)
}
