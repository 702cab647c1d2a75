// Package client provides an MCP client transport with x402 payment support.
package client

import (
	"net/http"

	"go.uber.org/zap"

	paidquery "github.com/paidquery/paidquery-go"
)

// Config holds configuration for the payment-capable MCP transport.
type Config struct {
	// Signer produces payment signatures.
	Signer paidquery.Signer

	// Selector chooses among accepted methods (FirstAccepted if nil).
	Selector paidquery.Selector

	// DomainDefaults supplies fallback EIP-712 domain parameters.
	DomainDefaults *paidquery.DomainDefaults

	// ServerURL is the MCP server endpoint.
	ServerURL string

	// HTTPClient is the HTTP client for requests (default if nil).
	HTTPClient *http.Client

	// Logger receives structured flow logs. Nop if nil.
	Logger *zap.Logger

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt paidquery.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess paidquery.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure paidquery.PaymentCallback
}

// Option is a functional option for configuring the Transport.
type Option func(*Config)

// WithSigner sets the payment signer.
func WithSigner(signer paidquery.Signer) Option {
	return func(c *Config) { c.Signer = signer }
}

// WithSelector sets a custom method selection policy.
func WithSelector(selector paidquery.Selector) Option {
	return func(c *Config) { c.Selector = selector }
}

// WithDomainDefaults sets fallback EIP-712 domain parameters.
func WithDomainDefaults(defaults paidquery.DomainDefaults) Option {
	return func(c *Config) {
		d := defaults
		c.DomainDefaults = &d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithPaymentCallback sets a unified payment callback for all events.
func WithPaymentCallback(callback paidquery.PaymentCallback) Option {
	return func(c *Config) {
		c.OnPaymentAttempt = callback
		c.OnPaymentSuccess = callback
		c.OnPaymentFailure = callback
	}
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig(serverURL string) *Config {
	return &Config{
		ServerURL:  serverURL,
		HTTPClient: http.DefaultClient,
		Selector:   paidquery.FirstAccepted{},
		Logger:     zap.NewNop(),
	}
}
