package http

import (
	"net/http"

	"go.uber.org/zap"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/internal/helpers"
)

// Client is an HTTP client that pays for 402-gated resources transparently.
// It wraps a standard http.Client with the x402 Transport.
type Client struct {
	*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a payment-capable HTTP client. At minimum a signer must
// be configured with WithSigner.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{Client: &http.Client{}}
	if client.Transport == nil {
		client.Transport = http.DefaultTransport
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// WithHTTPClient sets a custom underlying HTTP client. I/O timeouts and
// cancellation policy belong to this client, not to the payment layer.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		c.Client = httpClient
		if c.Transport == nil {
			c.Transport = http.DefaultTransport
		}
		return nil
	}
}

// WithSigner sets the payment signer.
func WithSigner(signer paidquery.Signer) ClientOption {
	return func(c *Client) error {
		getOrCreateTransport(c).Signer = signer
		return nil
	}
}

// WithSelector sets a custom method selection policy.
func WithSelector(selector paidquery.Selector) ClientOption {
	return func(c *Client) error {
		getOrCreateTransport(c).Selector = selector
		return nil
	}
}

// WithDomainDefaults sets the fallback EIP-712 domain parameters used when
// a server omits them from its payment requirements.
func WithDomainDefaults(defaults paidquery.DomainDefaults) ClientOption {
	return func(c *Client) error {
		d := defaults
		getOrCreateTransport(c).DomainDefaults = &d
		return nil
	}
}

// WithLogger sets the structured logger for payment flow events.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) error {
		getOrCreateTransport(c).Logger = logger
		return nil
	}
}

// WithPaymentCallbacks sets the lifecycle callbacks. Pass nil for any
// callback you don't want to set.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure paidquery.PaymentCallback) ClientOption {
	return func(c *Client) error {
		transport := getOrCreateTransport(c)
		if onAttempt != nil {
			transport.OnPaymentAttempt = onAttempt
		}
		if onSuccess != nil {
			transport.OnPaymentSuccess = onSuccess
		}
		if onFailure != nil {
			transport.OnPaymentFailure = onFailure
		}
		return nil
	}
}

// getOrCreateTransport wraps the client's transport in a payment Transport
// exactly once.
func getOrCreateTransport(c *Client) *Transport {
	transport, ok := c.Transport.(*Transport)
	if !ok {
		transport = &Transport{Base: c.Transport}
		c.Transport = transport
	}
	return transport
}

// GetSettlement extracts the settlement record from a response, or nil when
// the server settled out of band.
func GetSettlement(resp *http.Response) *paidquery.SettleResponse {
	return helpers.ParseSettlement(resp.Header.Get(helpers.PaymentResponseHeader))
}
