// Package mcp provides x402 payment integration for agents speaking the
// Model Context Protocol. A 402 arrives as a JSON-RPC error carrying the
// accepted-methods envelope in its data field; the payment payload rides in
// params._meta on the retry.
package mcp

import (
	paidquery "github.com/paidquery/paidquery-go"
)

// PaymentMetaKey is the params._meta key carrying the payment payload.
const PaymentMetaKey = "x402/payment"

// Challenge is the data structure carried by a 402 JSON-RPC error.
type Challenge struct {
	// X402Version is the protocol version (1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Accepts lists the payment methods the server will accept.
	Accepts []paidquery.PaymentRequirements `json:"accepts"`
}
