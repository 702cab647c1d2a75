package paidquery

import "time"

// PaymentEventType represents the type of payment lifecycle event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent describes one payment lifecycle event. The HTTP, query and
// MCP layers all emit the same shape so callers can hang logging and
// monitoring off a single callback type.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Method is the transport ("HTTP", "QUERY" or "MCP").
	Method string

	// RequestID correlates the two phases of one call.
	RequestID string

	// Resource is the resource identifier being paid for.
	Resource string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the asset contract address.
	Asset string

	// Network is the network identifier.
	Network string

	// Scheme is the payment scheme.
	Scheme string

	// Recipient is the payment recipient address.
	Recipient string

	// Payer is the address that paid (available on success).
	Payer string

	// Transaction is the settlement transaction reference (on success).
	Transaction string

	// Error contains failure details (on failure).
	Error error

	// Duration is the time taken for the payment flow so far.
	Duration time.Duration
}

// PaymentCallback handles payment events. Callbacks run synchronously inside
// the payment flow and should return quickly.
type PaymentCallback func(PaymentEvent)
