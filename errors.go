package paidquery

import "errors"

// Sentinel errors for the payment flow. None of these are retried
// internally; the single designed retry is the authorized resubmission
// after a 402.
var (
	// ErrValidation indicates bad caller input; no I/O was performed.
	ErrValidation = errors.New("paidquery: invalid input")

	// ErrNoPaymentMethod indicates the server offered zero accepted methods.
	ErrNoPaymentMethod = errors.New("paidquery: server offered no payment methods")

	// ErrInvalidRequirement indicates an offered method is unusable
	// (non-positive timeout, malformed amount, unresolvable domain).
	ErrInvalidRequirement = errors.New("paidquery: invalid payment requirement")

	// ErrSigningFailed indicates the signing credential is absent or unusable.
	ErrSigningFailed = errors.New("paidquery: payment signing failed")

	// ErrUserRejected indicates an interactive signing backend declined.
	ErrUserRejected = errors.New("paidquery: payment rejected by user")

	// ErrPaymentRejected indicates the server still refused after an
	// authorized retry.
	ErrPaymentRejected = errors.New("paidquery: payment rejected by server")

	// ErrDecode indicates a structurally invalid wire payload or
	// settlement record.
	ErrDecode = errors.New("paidquery: malformed payment data")

	// ErrMalformedHeader indicates the X-Payment header is malformed.
	ErrMalformedHeader = errors.New("paidquery: malformed payment header")

	// ErrInvalidAmount indicates an invalid atomic amount string.
	ErrInvalidAmount = errors.New("paidquery: invalid amount")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("paidquery: invalid private key")

	// ErrInvalidKeystore indicates an invalid or corrupted keystore file.
	ErrInvalidKeystore = errors.New("paidquery: invalid keystore file")

	// ErrInvalidNetwork indicates an unknown or unsupported network.
	ErrInvalidNetwork = errors.New("paidquery: invalid or unsupported network")

	// ErrUnsupportedVersion indicates an unsupported protocol version.
	ErrUnsupportedVersion = errors.New("paidquery: unsupported protocol version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("paidquery: unsupported payment scheme")
)

// ErrorCode classifies payment errors for programmatic handling.
type ErrorCode string

const (
	// ErrCodeValidation indicates bad caller input.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNoPaymentMethod indicates an empty accepted-methods list.
	ErrCodeNoPaymentMethod ErrorCode = "NO_PAYMENT_METHOD"

	// ErrCodeInvalidRequirement indicates an unusable payment method.
	ErrCodeInvalidRequirement ErrorCode = "INVALID_REQUIREMENT"

	// ErrCodeSigningFailed indicates the signing step failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeUserRejected indicates an interactive backend declined.
	ErrCodeUserRejected ErrorCode = "USER_REJECTED"

	// ErrCodePaymentRejected indicates server-side rejection after retry.
	ErrCodePaymentRejected ErrorCode = "PAYMENT_REJECTED"

	// ErrCodeDecode indicates malformed wire data.
	ErrCodeDecode ErrorCode = "DECODE_FAILED"

	// ErrCodeTransport indicates a network error surfaced from the
	// resource client.
	ErrCodeTransport ErrorCode = "TRANSPORT"
)

// PaymentError provides structured error information: a stable code for
// branching, a human message, and optional context.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
