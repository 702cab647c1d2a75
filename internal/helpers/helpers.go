// Package helpers provides internal HTTP utilities shared by the x402
// transport and middleware.
package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/encoding"
)

// Wire header names for the payment payload and the settlement record.
const (
	PaymentHeader         = "X-Payment"
	PaymentResponseHeader = "X-Payment-Response"
)

// ErrNilPayment is returned when payment is nil in BuildPaymentHeader.
var ErrNilPayment = errors.New("payment is nil")

// ParsePaymentRequired extracts the accepted-methods envelope from a 402
// response body. Structural problems are decode errors; an empty accepts
// list is returned as-is so the caller can classify it.
func ParsePaymentRequired(resp *http.Response) (*paidquery.PaymentRequired, error) {
	if resp == nil || resp.Body == nil {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeDecode,
			"missing response or body", paidquery.ErrDecode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeDecode,
			"failed to read challenge body", err)
	}

	required, err := encoding.DecodeRequired(body)
	if err != nil {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeDecode,
			"failed to decode payment challenge", err)
	}
	return &required, nil
}

// ParsePaymentHeader extracts and decodes a PaymentPayload from the
// X-Payment header of an incoming request. Returns ErrMalformedHeader when
// the header is missing or invalid, ErrUnsupportedVersion on a version
// mismatch.
func ParsePaymentHeader(r *http.Request) (*paidquery.PaymentPayload, error) {
	header := r.Header.Get(PaymentHeader)
	if header == "" {
		return nil, paidquery.ErrMalformedHeader
	}

	payment, err := encoding.DecodePayment(header)
	if err != nil {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeDecode,
			"failed to decode payment header", err)
	}
	if payment.X402Version != paidquery.X402Version {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeDecode,
			"unsupported x402 version", paidquery.ErrUnsupportedVersion)
	}
	return &payment, nil
}

// BuildPaymentHeader creates the X-Payment header value from a payload.
func BuildPaymentHeader(payment *paidquery.PaymentPayload) (string, error) {
	if payment == nil {
		return "", fmt.Errorf("BuildPaymentHeader: %w", ErrNilPayment)
	}
	encoded, err := encoding.EncodePayment(*payment)
	if err != nil {
		return "", fmt.Errorf("BuildPaymentHeader: encode payment: %w", err)
	}
	return encoded, nil
}

// ParseSettlement extracts the settlement record from an X-Payment-Response
// header value. Returns nil when the header is empty or unparseable;
// out-of-band settlement is not an error.
func ParseSettlement(headerValue string) *paidquery.SettleResponse {
	if headerValue == "" {
		return nil
	}
	settlement, err := encoding.DecodeSettlement(headerValue)
	if err != nil {
		return nil
	}
	return &settlement
}

// SendPaymentRequired writes a 402 Payment Required response carrying the
// accepted payment methods.
func SendPaymentRequired(w http.ResponseWriter, accepts []paidquery.PaymentRequirements, errMsg string) error {
	response := paidquery.PaymentRequired{
		X402Version: paidquery.X402Version,
		Error:       errMsg,
		Accepts:     accepts,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("encoding PaymentRequired response: %w", err)
	}
	return nil
}

// AddPaymentResponseHeader attaches the settlement record to the response.
func AddPaymentResponseHeader(w http.ResponseWriter, settlement *paidquery.SettleResponse) error {
	if settlement == nil {
		return nil
	}
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return fmt.Errorf("AddPaymentResponseHeader: encode settlement: %w", err)
	}
	w.Header().Set(PaymentResponseHeader, encoded)
	return nil
}

// BuildResourceURL constructs the full URL of the protected resource.
func BuildResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}
