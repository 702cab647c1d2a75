package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/mcp"
	"github.com/paidquery/paidquery-go/validation"
)

// Transport wraps an MCP transport and adds x402 payment handling: when a
// tool call fails with a 402 JSON-RPC error it builds and signs one
// authorization and retries the call with the payment in params._meta.
// Exactly one retry per request; a second 402 is surfaced as-is.
type Transport struct {
	baseTransport transport.Interface
	config        *Config
}

// NewTransport creates a payment-capable MCP transport for the given
// server URL.
func NewTransport(serverURL string, opts ...Option) (*Transport, error) {
	config := DefaultConfig(serverURL)
	for _, opt := range opts {
		opt(config)
	}

	baseTransport, err := transport.NewStreamableHTTP(serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create base transport: %w", err)
	}

	if config.Selector == nil {
		config.Selector = paidquery.FirstAccepted{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Transport{
		baseTransport: baseTransport,
		config:        config,
	}, nil
}

// Start starts the MCP connection.
func (t *Transport) Start(ctx context.Context) error {
	return t.baseTransport.Start(ctx)
}

// SendRequest implements transport.Interface, intercepting 402 errors.
func (t *Transport) SendRequest(ctx context.Context, req transport.JSONRPCRequest) (*transport.JSONRPCResponse, error) {
	resp, err := t.baseTransport.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error == nil || resp.Error.Code != 402 {
		return resp, nil
	}

	accepts, err := t.extractAccepts(resp.Error.Data)
	if err != nil {
		return resp, err
	}

	startTime := time.Now()
	payment, selected, err := t.buildPayment(accepts)
	if err != nil {
		t.failure(req.Method, err, time.Since(startTime))
		return resp, mcp.WrapPaymentError(err, req.Method)
	}

	t.config.Logger.Debug("paying for mcp call",
		zap.String("method", req.Method),
		zap.String("network", selected.Network),
		zap.String("amount", selected.MaxAmountRequired))

	if t.config.OnPaymentAttempt != nil {
		t.config.OnPaymentAttempt(paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventAttempt,
			Timestamp: startTime,
			Method:    "MCP",
			Resource:  req.Method,
			Amount:    selected.MaxAmountRequired,
			Asset:     selected.Asset,
			Network:   selected.Network,
			Scheme:    selected.Scheme,
			Recipient: selected.PayTo,
		})
	}

	modifiedReq, err := injectPaymentMeta(req, payment)
	if err != nil {
		return resp, fmt.Errorf("failed to inject payment: %w", err)
	}

	return t.retryWithPayment(ctx, modifiedReq, selected, startTime)
}

// SendNotification sends a notification to the server.
func (t *Transport) SendNotification(ctx context.Context, notif mcpproto.JSONRPCNotification) error {
	return t.baseTransport.SendNotification(ctx, notif)
}

// SetNotificationHandler sets the notification handler.
func (t *Transport) SetNotificationHandler(handler func(mcpproto.JSONRPCNotification)) {
	t.baseTransport.SetNotificationHandler(handler)
}

// Close closes the transport.
func (t *Transport) Close() error {
	return t.baseTransport.Close()
}

// GetSessionId returns the session ID.
func (t *Transport) GetSessionId() string {
	return t.baseTransport.GetSessionId()
}

// extractAccepts pulls the accepted-methods list out of 402 error data.
func (t *Transport) extractAccepts(data interface{}) ([]paidquery.PaymentRequirements, error) {
	if data == nil {
		return nil, mcp.ErrNoPaymentRequirements
	}
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error data: %w", err)
	}

	var challenge mcp.Challenge
	if err := json.Unmarshal(dataBytes, &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment requirements: %w", err)
	}
	if challenge.X402Version != paidquery.X402Version {
		return nil, fmt.Errorf("%w: got version %d", paidquery.ErrUnsupportedVersion, challenge.X402Version)
	}
	if len(challenge.Accepts) == 0 {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeNoPaymentMethod,
			"server offered no payment methods", paidquery.ErrNoPaymentMethod)
	}
	return challenge.Accepts, nil
}

func (t *Transport) buildPayment(accepts []paidquery.PaymentRequirements) (*paidquery.PaymentPayload, *paidquery.PaymentRequirements, error) {
	if t.config.Signer == nil {
		return nil, nil, paidquery.NewPaymentError(paidquery.ErrCodeSigningFailed,
			"no signer configured", paidquery.ErrSigningFailed)
	}

	selected, err := t.config.Selector.Select(accepts)
	if err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateRequirements(*selected); err != nil {
		return nil, nil, paidquery.NewPaymentError(paidquery.ErrCodeInvalidRequirement,
			"selected method is unusable", err)
	}

	domain, err := paidquery.ResolveDomain(selected, t.config.DomainDefaults)
	if err != nil {
		return nil, nil, err
	}
	auth, err := paidquery.BuildAuthorization(selected, t.config.Signer.Address(), time.Now())
	if err != nil {
		return nil, nil, err
	}
	signature, err := t.config.Signer.SignAuthorization(domain, auth)
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

// injectPaymentMeta puts the payment payload into params._meta.
func injectPaymentMeta(req transport.JSONRPCRequest, payment *paidquery.PaymentPayload) (transport.JSONRPCRequest, error) {
	params, ok := req.Params.(map[string]interface{})
	if !ok {
		params = make(map[string]interface{})
		if req.Params != nil {
			data, err := json.Marshal(req.Params)
			if err != nil {
				return req, fmt.Errorf("failed to marshal params: %w", err)
			}
			if err := json.Unmarshal(data, &params); err != nil {
				return req, fmt.Errorf("failed to unmarshal params: %w", err)
			}
		}
	}

	meta, ok := params["_meta"].(map[string]interface{})
	if !ok {
		meta = make(map[string]interface{})
	}
	meta[mcp.PaymentMetaKey] = payment
	params["_meta"] = meta

	modifiedReq := req
	modifiedReq.Params = params
	return modifiedReq, nil
}

func (t *Transport) retryWithPayment(ctx context.Context, req transport.JSONRPCRequest, selected *paidquery.PaymentRequirements, startTime time.Time) (*transport.JSONRPCResponse, error) {
	resp, err := t.baseTransport.SendRequest(ctx, req)
	duration := time.Since(startTime)

	if err != nil {
		t.failure(req.Method, err, duration)
		return resp, err
	}

	if resp.Error != nil {
		if resp.Error.Code == 402 {
			t.failure(req.Method, paidquery.NewPaymentError(paidquery.ErrCodePaymentRejected,
				resp.Error.Message, paidquery.ErrPaymentRejected), duration)
		}
		return resp, nil
	}

	if t.config.OnPaymentSuccess != nil {
		t.config.OnPaymentSuccess(paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventSuccess,
			Timestamp: time.Now(),
			Method:    "MCP",
			Resource:  req.Method,
			Network:   selected.Network,
			Scheme:    selected.Scheme,
			Amount:    selected.MaxAmountRequired,
			Asset:     selected.Asset,
			Recipient: selected.PayTo,
			Duration:  duration,
		})
	}

	return resp, nil
}

func (t *Transport) failure(method string, err error, duration time.Duration) {
	t.config.Logger.Debug("mcp payment failed", zap.String("method", method), zap.Error(err))
	if t.config.OnPaymentFailure != nil {
		t.config.OnPaymentFailure(paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventFailure,
			Timestamp: time.Now(),
			Method:    "MCP",
			Resource:  method,
			Error:     err,
			Duration:  duration,
		})
	}
}
