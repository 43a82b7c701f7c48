package events

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// Kind tags a domain event. It selects exactly one route in the dispatch table.
type Kind string

const (
	KindUserRegistered       Kind = "user.registered"
	KindEmailVerification    Kind = "user.email_verification_requested"
	KindPasswordResetRequest Kind = "user.password_reset_requested"
	KindPasswordChanged      Kind = "user.password_changed"
	KindSecurityAlert        Kind = "security.alert"
	KindBookingCreated       Kind = "booking.created"
	KindBookingCancelled     Kind = "booking.cancelled"
	KindPaymentReceived      Kind = "payment.received"
	KindPaymentFailed        Kind = "payment.failed"
	KindLoyaltyPointsEarned  Kind = "loyalty.points_earned"
)

// Event is a business event emitted by the booking, payment and account
// domains. Data carries the kind-specific fields by their camelCase names.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Kind       Kind           `json:"kind"`
	UserID     string         `json:"user_id,omitempty"`
	Email      string         `json:"email"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// ErrMalformedEvent marks payloads that can never be processed.
var ErrMalformedEvent = errors.New("malformed event")

// Decode parses a JSON event payload from a broker or HTTP body.
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, domain.Mark(errors.Wrap(err, "decode event"), ErrMalformedEvent)
	}
	return ev, nil
}

// IsPermanent reports whether redelivering the same event can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, domain.ErrUnknownEvent) ||
		errors.Is(err, domain.ErrValidation)
}
