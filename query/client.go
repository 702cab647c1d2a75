// Package query drives the two-phase payment flow for metered SQL queries:
// send the statement unauthenticated, and when the server answers 402
// Payment Required, sign one authorization for an accepted method and
// resubmit the identical statement with the payment payload.
//
// Each Execute call owns its authorization and nonce; nothing is cached or
// persisted across calls, so concurrent calls are independent.
package query

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/internal/helpers"
	"github.com/paidquery/paidquery-go/validation"
)

// Client orchestrates paid query execution against a metered resource.
// Construct with NewClient; a Client is safe for concurrent use.
type Client struct {
	signer   paidquery.Signer
	selector paidquery.Selector
	resource ResourceClient
	defaults *paidquery.DomainDefaults
	logger   *zap.Logger

	onAttempt paidquery.PaymentCallback
	onSuccess paidquery.PaymentCallback
	onFailure paidquery.PaymentCallback

	// connectOnce guards the resource client's optional handshake so
	// concurrent first use does not double-initialize.
	connectOnce sync.Once
	connectErr  error
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a query client that pays with the given signer.
func NewClient(signer paidquery.Signer, opts ...Option) (*Client, error) {
	if signer == nil {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeValidation,
			"signer is required", paidquery.ErrValidation)
	}

	c := &Client{
		signer:   signer,
		selector: paidquery.FirstAccepted{},
		resource: &HTTPResourceClient{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithSelector sets the method selection policy. The default picks the
// first accepted method; servers order preferred schemes first.
func WithSelector(selector paidquery.Selector) Option {
	return func(c *Client) { c.selector = selector }
}

// WithResourceClient sets the transport used to reach the resource server.
func WithResourceClient(rc ResourceClient) Option {
	return func(c *Client) { c.resource = rc }
}

// WithDomainDefaults sets fallback EIP-712 domain parameters for servers
// that omit them from their payment requirements. Without defaults such
// challenges fail closed.
func WithDomainDefaults(defaults paidquery.DomainDefaults) Option {
	return func(c *Client) {
		d := defaults
		c.defaults = &d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPaymentCallbacks sets lifecycle callbacks. Pass nil for any callback
// you don't want to set.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure paidquery.PaymentCallback) Option {
	return func(c *Client) {
		c.onAttempt = onAttempt
		c.onSuccess = onSuccess
		c.onFailure = onFailure
	}
}

// Execute runs one read-only statement against a metered resource, paying
// for it if the server demands payment.
//
// Input is validated before any I/O: the resource must be non-empty and the
// statement must be a read-only SELECT. Servers that never require payment
// are handled without a payment attempt. When payment is required, exactly
// one authorization is built, signed and retried; a second 402 after the
// authorized retry is ErrPaymentRejected, never looped.
func (c *Client) Execute(ctx context.Context, resource, statement string) (*Result, error) {
	if resource == "" {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeValidation,
			"resource identifier is empty", paidquery.ErrValidation)
	}
	if err := ValidateStatement(statement); err != nil {
		return nil, err
	}

	c.connectOnce.Do(func() {
		if conn, ok := c.resource.(Connecter); ok {
			c.connectErr = conn.Connect(ctx)
		}
	})
	if c.connectErr != nil {
		return nil, c.connectErr
	}

	requestID := uuid.NewString()
	logger := c.logger.With(zap.String("request_id", requestID), zap.String("resource", resource))
	req := Request{Resource: resource, Statement: statement}

	// Phase 1: unauthenticated.
	resp, err := c.resource.Send(ctx, req, "")
	if err != nil {
		return nil, err
	}

	if resp.Status != http.StatusPaymentRequired {
		// The server never asked for payment; the body is final.
		return c.finish(resp, logger)
	}

	if resp.Required == nil || len(resp.Required.Accepts) == 0 {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeNoPaymentMethod,
			"server offered no payment methods", paidquery.ErrNoPaymentMethod)
	}

	startTime := time.Now()
	payment, selected, err := c.buildPayment(resp.Required.Accepts)
	if err != nil {
		c.failure(requestID, resource, err, time.Since(startTime))
		return nil, err
	}

	logger.Debug("paying for query",
		zap.String("network", selected.Network),
		zap.String("asset", selected.Asset),
		zap.String("amount", selected.MaxAmountRequired),
		zap.String("recipient", selected.PayTo))

	if c.onAttempt != nil {
		c.onAttempt(paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventAttempt,
			Timestamp: startTime,
			Method:    "QUERY",
			RequestID: requestID,
			Resource:  resource,
			Network:   selected.Network,
			Scheme:    selected.Scheme,
			Amount:    selected.MaxAmountRequired,
			Asset:     selected.Asset,
			Recipient: selected.PayTo,
		})
	}

	paymentHeader, err := helpers.BuildPaymentHeader(payment)
	if err != nil {
		err = paidquery.NewPaymentError(paidquery.ErrCodeDecode, "failed to encode payment", err)
		c.failure(requestID, resource, err, time.Since(startTime))
		return nil, err
	}

	// Phase 2: the identical request plus the payment payload.
	retryResp, err := c.resource.Send(ctx, req, paymentHeader)
	duration := time.Since(startTime)
	if err != nil {
		c.failure(requestID, resource, err, duration)
		return nil, err
	}

	if retryResp.Status == http.StatusPaymentRequired {
		err := paidquery.NewPaymentError(paidquery.ErrCodePaymentRejected,
			"server rejected the payment authorization", paidquery.ErrPaymentRejected)
		if retryResp.Required != nil && retryResp.Required.Error != "" {
			err = err.WithDetails("server_error", retryResp.Required.Error)
		}
		c.failure(requestID, resource, err, duration)
		return nil, err
	}

	result, err := c.finish(retryResp, logger)
	if err != nil {
		c.failure(requestID, resource, err, duration)
		return nil, err
	}

	if c.onSuccess != nil {
		event := paidquery.PaymentEvent{
			Type:        paidquery.PaymentEventSuccess,
			Timestamp:   time.Now(),
			Method:      "QUERY",
			RequestID:   requestID,
			Resource:    resource,
			Network:     selected.Network,
			Scheme:      selected.Scheme,
			Amount:      selected.MaxAmountRequired,
			Asset:       selected.Asset,
			Recipient:   selected.PayTo,
			Transaction: result.TransactionRef(),
			Duration:    duration,
		}
		if result.Settlement != nil {
			event.Payer = result.Settlement.Payer
		}
		c.onSuccess(event)
	}

	return result, nil
}

// buildPayment selects one accepted method, builds the authorization and
// signs it. Exactly one payload per Execute call.
func (c *Client) buildPayment(accepts []paidquery.PaymentRequirements) (*paidquery.PaymentPayload, *paidquery.PaymentRequirements, error) {
	selected, err := c.selector.Select(accepts)
	if err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateRequirements(*selected); err != nil {
		return nil, nil, paidquery.NewPaymentError(paidquery.ErrCodeInvalidRequirement,
			"selected method is unusable", err)
	}

	domain, err := paidquery.ResolveDomain(selected, c.defaults)
	if err != nil {
		return nil, nil, err
	}
	auth, err := paidquery.BuildAuthorization(selected, c.signer.Address(), time.Now())
	if err != nil {
		return nil, nil, err
	}
	signature, err := c.signer.SignAuthorization(domain, auth)
	if err != nil {
		return nil, nil, err
	}

	return &paidquery.PaymentPayload{
		X402Version: paidquery.X402Version,
		Scheme:      selected.Scheme,
		Network:     selected.Network,
		Payload: paidquery.ExactEVMPayload{
			Signature:     signature,
			Authorization: auth,
		},
	}, selected, nil
}

func (c *Client) finish(resp *Response, logger *zap.Logger) (*Result, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeTransport,
			fmt.Sprintf("resource server returned status %d", resp.Status), nil).
			WithDetails("body", string(resp.Body))
	}

	result, err := decodeResult(resp.Body, helpers.ParseSettlement(resp.PaymentResponse))
	if err != nil {
		return nil, err
	}

	logger.Debug("query complete",
		zap.Int("rows", result.RowCount),
		zap.String("actual_cost", result.ActualCost.String()),
		zap.Int64("execution_ms", result.ExecutionMs))
	return result, nil
}

func (c *Client) failure(requestID, resource string, err error, duration time.Duration) {
	c.logger.Debug("query payment failed",
		zap.String("request_id", requestID),
		zap.String("resource", resource),
		zap.Error(err))
	if c.onFailure != nil {
		c.onFailure(paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventFailure,
			Timestamp: time.Now(),
			Method:    "QUERY",
			RequestID: requestID,
			Resource:  resource,
			Error:     err,
			Duration:  duration,
		})
	}
}

// ValidateStatement checks that a statement is syntactically a read-only
// SELECT (optionally introduced by a WITH clause). Anything else is
// rejected before any network round trip.
func ValidateStatement(statement string) error {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return paidquery.NewPaymentError(paidquery.ErrCodeValidation,
			"statement is empty", paidquery.ErrValidation)
	}

	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return nil
	}
	return paidquery.NewPaymentError(paidquery.ErrCodeValidation,
		"only read-only SELECT statements are allowed", paidquery.ErrValidation).
		WithDetails("statement", trimmed)
}
