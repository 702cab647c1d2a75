// Package paidquery implements the client side of the x402 payment protocol
// for metered resources such as paid SQL queries and per-call APIs.
//
// The flow is a two-phase challenge/retry: the server answers a bare request
// with 402 Payment Required and a list of acceptable payment methods, the
// client builds a signed, time-bounded EIP-3009 authorization for one of them
// and resubmits the original request carrying the payment payload.
//
// Import path: github.com/paidquery/paidquery-go
package paidquery

import (
	"encoding/json"
	"math/big"
)

// Protocol version constant.
const X402Version = 1

// SchemeExact is the only payment scheme this client implements: the
// authorization transfers exactly the amount the server asked for.
const SchemeExact = "exact"

// PaymentRequirements defines a single acceptable payment method.
// This is an element of the "accepts" array of a PaymentRequired challenge.
// Immutable once received from the server.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier (e.g. "exact").
	Scheme string `json:"scheme"`

	// Network is the network identifier (e.g. "base", "base-sepolia").
	Network string `json:"network"`

	// MaxAmountRequired is the maximum payment amount in atomic units,
	// as a decimal string. It is copied verbatim into the authorization
	// and never passes through floating point.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource identifies the protected resource being paid for.
	Resource string `json:"resource"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType,omitempty"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds bounds the validity window of the authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the token contract address the payment is denominated in.
	Asset string `json:"asset"`

	// OutputSchema optionally describes the response shape.
	OutputSchema *json.RawMessage `json:"outputSchema,omitempty"`

	// Extra carries scheme-specific data, notably the EIP-712 domain
	// name and version of the asset contract.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequired is the 402 response body sent by resource servers.
type PaymentRequired struct {
	// X402Version is the protocol version (1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Accepts lists the payment methods the server will accept,
	// ordered by server preference.
	Accepts []PaymentRequirements `json:"accepts"`
}

// Authorization is the canonical payable instruction covered by the
// signature. All numeric fields are decimal strings on the wire to avoid
// precision loss; the nonce is 32 bytes, hex encoded.
type Authorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string preventing replay.
	Nonce string `json:"nonce"`
}

// ExactEVMPayload carries the signed EIP-3009 authorization for the
// "exact" scheme.
type ExactEVMPayload struct {
	// Signature is the hex-encoded 65-byte ECDSA signature.
	Signature string `json:"signature"`

	// Authorization contains the transferWithAuthorization parameters.
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the wire envelope submitted on the authenticated retry.
// Constructed once per retry attempt and never reused across requests:
// each carries a fresh nonce and validity window.
type PaymentPayload struct {
	// X402Version is the protocol version (1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme of the selected method.
	Scheme string `json:"scheme"`

	// Network is the network of the selected method.
	Network string `json:"network"`

	// Payload contains the signed authorization.
	Payload ExactEVMPayload `json:"payload"`
}

// SettleResponse is the settlement acknowledgment a server may return after
// an authorized retry, either inline in the result body or encoded in the
// X-Payment-Response header.
type SettleResponse struct {
	// Success indicates whether the payment was executed.
	Success bool `json:"success"`

	// ErrorReason provides a short error code if the payment failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the transaction reference proving execution.
	Transaction string `json:"transaction"`

	// Network is the network where the payment settled.
	Network string `json:"network,omitempty"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// DomainParams scope a signature to an unambiguous verification domain:
// a specific contract, chain and protocol name/version. A signature produced
// under one domain cannot be replayed against another.
type DomainParams struct {
	// Name is the EIP-712 domain name of the asset contract (e.g. "USDC").
	Name string

	// Version is the EIP-712 domain version (e.g. "2").
	Version string

	// ChainID is the EIP-155 chain id of the network.
	ChainID int64

	// VerifyingContract is the address of the asset contract that will
	// verify the authorization.
	VerifyingContract string
}

// DomainDefaults supplies EIP-712 domain name/version for assets whose
// payment requirements omit them. The fallback is deliberately explicit:
// guessing domain parameters silently is a correctness hazard, so when
// neither the server nor these defaults provide name and version the
// builder fails closed with ErrInvalidRequirement.
type DomainDefaults struct {
	// Name is the fallback domain name.
	Name string

	// Version is the fallback domain version.
	Version string
}

// ParseAmount parses an atomic-unit decimal amount string.
// Returns ErrInvalidAmount if the string is not a non-negative integer.
func ParseAmount(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	if v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}
