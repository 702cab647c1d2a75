package mcp

import (
	"errors"
	"fmt"

	paidquery "github.com/paidquery/paidquery-go"
)

var (
	// ErrNoPaymentRequirements indicates a 402 error carried no
	// accepted-methods envelope.
	ErrNoPaymentRequirements = errors.New("no payment requirements in 402 error")

	// ErrInvalidRequest indicates the MCP request is malformed.
	ErrInvalidRequest = errors.New("invalid mcp request")
)

// PaymentError wraps a payment error with MCP call context.
type PaymentError struct {
	Err  error
	Tool string
}

func (e *PaymentError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("payment error for %s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("payment error: %v", e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// WrapPaymentError attaches the tool/method name to a payment error.
func WrapPaymentError(err error, tool string) error {
	if err == nil {
		return nil
	}
	return &PaymentError{Err: err, Tool: tool}
}

// IsPaymentError reports whether an error is payment-related.
func IsPaymentError(err error) bool {
	if err == nil {
		return false
	}
	var paymentErr *PaymentError
	return errors.As(err, &paymentErr) ||
		errors.Is(err, ErrNoPaymentRequirements) ||
		errors.Is(err, paidquery.ErrNoPaymentMethod) ||
		errors.Is(err, paidquery.ErrInvalidRequirement) ||
		errors.Is(err, paidquery.ErrSigningFailed) ||
		errors.Is(err, paidquery.ErrUserRejected) ||
		errors.Is(err, paidquery.ErrPaymentRejected) ||
		errors.Is(err, paidquery.ErrMalformedHeader)
}
