package events

import (
	"fmt"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// Category groups events for user preference checks.
type Category string

const (
	CategoryAccount  Category = "account"
	CategorySecurity Category = "security"
	CategoryBooking  Category = "booking"
	CategoryPayment  Category = "payment"
	CategoryLoyalty  Category = "loyalty"
)

// Route is one row of the dispatch table: everything needed to turn an event
// of one kind into a notification message.
type Route struct {
	Template string
	Priority domain.Priority
	Category Category
	// Mandatory routes skip the preference check.
	Mandatory bool
	Subject   func(data map[string]any) string
	Variables func(data map[string]any) map[string]any
	// Escalate, when set, may raise the priority based on the payload.
	Escalate func(data map[string]any) domain.Priority
}

// DefaultRoutes returns the dispatch table. Adding an event kind means adding a row.
func DefaultRoutes() map[Kind]Route {
	return map[Kind]Route{
		KindUserRegistered: {
			Template:  "welcome-email",
			Priority:  domain.PriorityHigh,
			Category:  CategoryAccount,
			Subject:   fixed("Welcome to West Bethel Motel!"),
			Variables: pick("firstName", "verificationLink"),
		},
		KindEmailVerification: {
			Template:  "email-verification",
			Priority:  domain.PriorityHigh,
			Category:  CategoryAccount,
			Subject:   fixed("Verify Your Email Address"),
			Variables: pick("firstName", "verificationLink", "verificationCode", "expiryHours"),
		},
		KindPasswordResetRequest: {
			Template:  "password-reset",
			Priority:  domain.PriorityUrgent,
			Category:  CategorySecurity,
			Mandatory: true,
			Subject:   fixed("Reset Your Password"),
			Variables: pick("firstName", "resetLink", "expiryMinutes"),
		},
		KindPasswordChanged: {
			Template:  "password-changed",
			Priority:  domain.PriorityHigh,
			Category:  CategorySecurity,
			Mandatory: true,
			Subject:   fixed("Your Password Was Changed"),
			Variables: pick("firstName", "changedAt", "ipAddress", "device", "location"),
		},
		KindSecurityAlert: {
			Template:  "security-alert",
			Priority:  domain.PriorityHigh,
			Category:  CategorySecurity,
			Mandatory: true,
			Subject: func(d map[string]any) string {
				if truthy(d["isCritical"]) {
					return "URGENT: Security Alert - " + str(d, "alertType")
				}
				return "Security Notice - " + str(d, "alertType")
			},
			Variables: pick("firstName", "alertType", "alertMessage", "isCritical", "occurredAt",
				"ipAddress", "location", "device", "browser", "wasYou", "secureAccountLink"),
			Escalate: func(d map[string]any) domain.Priority {
				if truthy(d["isCritical"]) {
					return domain.PriorityUrgent
				}
				return domain.PriorityHigh
			},
		},
		KindBookingCreated: {
			Template: "booking-confirmation",
			Priority: domain.PriorityHigh,
			Category: CategoryBooking,
			Subject:  prefixed("Booking Confirmation - ", "confirmationNumber"),
			Variables: pick("firstName", "confirmationNumber", "roomType", "checkInDate", "checkOutDate",
				"numberOfNights", "numberOfGuests", "specialRequests", "totalAmount"),
		},
		KindBookingCancelled: {
			Template: "booking-cancelled",
			Priority: domain.PriorityNormal,
			Category: CategoryBooking,
			Subject:  prefixed("Booking Cancellation - ", "confirmationNumber"),
			Variables: pick("firstName", "confirmationNumber", "roomType", "checkInDate", "checkOutDate",
				"cancelledAt", "refundAmount", "refundReference", "cancellationFee"),
		},
		KindPaymentReceived: {
			Template: "payment-receipt",
			Priority: domain.PriorityHigh,
			Category: CategoryPayment,
			Subject:  prefixed("Payment Receipt - ", "receiptNumber"),
			Variables: pick("firstName", "receiptNumber", "transactionDate", "paymentMethod", "bookingReference",
				"description", "amount", "transactionId", "loyaltyPointsEarned"),
		},
		KindPaymentFailed: {
			Template: "payment-failed",
			Priority: domain.PriorityUrgent,
			Category: CategoryPayment,
			Subject:  fixed("Payment Issue - Action Required"),
			Variables: pick("firstName", "bookingReference", "amount", "paymentMethod", "attemptedAt",
				"failureReason", "retryPaymentLink", "hoursUntilCancellation"),
		},
		KindLoyaltyPointsEarned: {
			Template: "loyalty-points-earned",
			Priority: domain.PriorityNormal,
			Category: CategoryLoyalty,
			Subject: func(d map[string]any) string {
				return fmt.Sprintf("You Earned %s Loyalty Points!", str(d, "pointsEarned"))
			},
			Variables: pick("firstName", "pointsEarned", "totalPoints", "previousBalance", "bookingReference",
				"earnedAt", "multiplier", "pointsToNextTier"),
		},
	}
}

func fixed(subject string) func(map[string]any) string {
	return func(map[string]any) string { return subject }
}

func prefixed(prefix, key string) func(map[string]any) string {
	return func(d map[string]any) string { return prefix + str(d, key) }
}

// pick copies the named keys that are present in the payload.
func pick(keys ...string) func(map[string]any) map[string]any {
	return func(d map[string]any) map[string]any {
		vars := make(map[string]any, len(keys))
		for _, k := range keys {
			if v, ok := d[k]; ok {
				vars[k] = v
			}
		}
		return vars
	}
}

func str(d map[string]any, key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		// JSON numbers decode as float64; print whole numbers without a fraction.
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}
