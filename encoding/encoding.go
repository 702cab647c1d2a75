// Package encoding is the payment payload codec: it converts payloads,
// settlement records and 402 challenges to and from their base64(JSON) wire
// form. All wire shapes are fixed structs, so encoding the same value twice
// produces identical bytes — required for interoperability with the
// verifying server.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	paidquery "github.com/paidquery/paidquery-go"
)

// EncodePayment converts a PaymentPayload to its base64-encoded JSON wire
// string, used as the X-Payment header value on the authorized retry.
func EncodePayment(payment paidquery.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment converts a base64-encoded JSON wire string back to a
// PaymentPayload. Structurally invalid input is an error; missing optional
// fields are not.
func DecodePayment(encoded string) (paidquery.PaymentPayload, error) {
	var payment paidquery.PaymentPayload

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payment, fmt.Errorf("%w: bad base64: %v", paidquery.ErrDecode, err)
	}
	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, fmt.Errorf("%w: bad payment JSON: %v", paidquery.ErrDecode, err)
	}
	return payment, nil
}

// EncodeSettlement converts a SettleResponse to base64-encoded JSON.
// Servers put this in the X-Payment-Response header.
func EncodeSettlement(settlement paidquery.SettleResponse) (string, error) {
	settlementJSON, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(settlementJSON), nil
}

// DecodeSettlement converts base64-encoded JSON to a SettleResponse.
func DecodeSettlement(encoded string) (paidquery.SettleResponse, error) {
	var settlement paidquery.SettleResponse

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("%w: bad base64: %v", paidquery.ErrDecode, err)
	}
	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("%w: bad settlement JSON: %v", paidquery.ErrDecode, err)
	}
	return settlement, nil
}

// DecodeRequired parses the JSON body of a 402 response into the
// accepted-methods envelope. An empty accepts list is left to the caller to
// classify; only structural problems are errors here.
func DecodeRequired(body []byte) (paidquery.PaymentRequired, error) {
	var required paidquery.PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return required, fmt.Errorf("%w: bad challenge JSON: %v", paidquery.ErrDecode, err)
	}
	return required, nil
}
