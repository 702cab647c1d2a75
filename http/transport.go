package http

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/internal/helpers"
	"github.com/paidquery/paidquery-go/validation"
)

// Transport is an http.RoundTripper that performs the x402 challenge/retry
// flow for arbitrary HTTP requests. It sends the request unauthenticated,
// and when the server answers 402 Payment Required it selects one accepted
// method, builds and signs exactly one authorization, and resubmits the
// identical request with the payment payload.
//
// Exactly one retry is attempted. A second 402 after the authorized retry
// means the server rejected the authorization; the response is returned
// as-is (RoundTripper semantics) and the failure callback fires with
// ErrPaymentRejected. Callers wanting an error value instead should use the
// query package orchestrator.
type Transport struct {
	// Base is the underlying RoundTripper (http.DefaultTransport if nil).
	Base http.RoundTripper

	// Signer produces signatures over authorization messages.
	Signer paidquery.Signer

	// Selector chooses among accepted methods. Defaults to FirstAccepted.
	Selector paidquery.Selector

	// DomainDefaults supplies EIP-712 domain name/version when the server
	// omits them. Nil means fail closed on such challenges.
	DomainDefaults *paidquery.DomainDefaults

	// Logger receives structured flow logs. Nop if nil.
	Logger *zap.Logger

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt paidquery.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess paidquery.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure paidquery.PaymentCallback
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reqCopy := req.Clone(req.Context())

	resp, err := base.RoundTrip(reqCopy)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	required, err := helpers.ParsePaymentRequired(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	payment, selected, err := t.buildPayment(required)
	if err != nil {
		t.failure(req.URL.String(), err, time.Since(startTime))
		return nil, err
	}

	logger.Debug("payment challenge accepted",
		zap.String("url", req.URL.String()),
		zap.String("network", selected.Network),
		zap.String("asset", selected.Asset),
		zap.String("amount", selected.MaxAmountRequired))

	if t.OnPaymentAttempt != nil {
		t.OnPaymentAttempt(paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventAttempt,
			Timestamp: startTime,
			Method:    "HTTP",
			Resource:  req.URL.String(),
			Network:   selected.Network,
			Scheme:    selected.Scheme,
			Amount:    selected.MaxAmountRequired,
			Asset:     selected.Asset,
			Recipient: selected.PayTo,
		})
	}

	paymentHeader, err := helpers.BuildPaymentHeader(payment)
	if err != nil {
		err = paidquery.NewPaymentError(paidquery.ErrCodeDecode, "failed to build payment header", err)
		t.failure(req.URL.String(), err, time.Since(startTime))
		return nil, err
	}

	reqRetry := req.Clone(req.Context())
	reqRetry.Header.Set(helpers.PaymentHeader, paymentHeader)

	respRetry, err := base.RoundTrip(reqRetry)
	duration := time.Since(startTime)
	if err != nil {
		t.failure(req.URL.String(), err, duration)
		return nil, err
	}

	if respRetry.StatusCode == http.StatusPaymentRequired {
		t.failure(req.URL.String(), paidquery.ErrPaymentRejected, duration)
		return respRetry, nil
	}

	settlement := helpers.ParseSettlement(respRetry.Header.Get(helpers.PaymentResponseHeader))
	if settlement != nil && settlement.Success {
		logger.Debug("payment settled",
			zap.String("transaction", settlement.Transaction),
			zap.String("network", settlement.Network))
	}
	if t.OnPaymentSuccess != nil {
		event := paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventSuccess,
			Timestamp: time.Now(),
			Method:    "HTTP",
			Resource:  req.URL.String(),
			Network:   selected.Network,
			Scheme:    selected.Scheme,
			Amount:    selected.MaxAmountRequired,
			Asset:     selected.Asset,
			Recipient: selected.PayTo,
			Duration:  duration,
		}
		if settlement != nil {
			event.Transaction = settlement.Transaction
			event.Payer = settlement.Payer
		}
		t.OnPaymentSuccess(event)
	}

	return respRetry, nil
}

// buildPayment selects one accepted method and produces the signed payload
// for it. The accepted-methods list must be non-empty; the selector is never
// asked to guess.
func (t *Transport) buildPayment(required *paidquery.PaymentRequired) (*paidquery.PaymentPayload, *paidquery.PaymentRequirements, error) {
	if len(required.Accepts) == 0 {
		return nil, nil, paidquery.NewPaymentError(paidquery.ErrCodeNoPaymentMethod,
			"server offered no payment methods", paidquery.ErrNoPaymentMethod)
	}

	selector := t.Selector
	if selector == nil {
		selector = paidquery.FirstAccepted{}
	}
	selected, err := selector.Select(required.Accepts)
	if err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateRequirements(*selected); err != nil {
		return nil, nil, paidquery.NewPaymentError(paidquery.ErrCodeInvalidRequirement,
			"selected method is unusable", err)
	}

	domain, err := paidquery.ResolveDomain(selected, t.DomainDefaults)
	if err != nil {
		return nil, nil, err
	}
	auth, err := paidquery.BuildAuthorization(selected, t.Signer.Address(), time.Now())
	if err != nil {
		return nil, nil, err
	}
	signature, err := t.Signer.SignAuthorization(domain, auth)
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

func (t *Transport) failure(url string, err error, duration time.Duration) {
	if t.Logger != nil {
		t.Logger.Debug("payment failed", zap.String("url", url), zap.Error(err))
	}
	if t.OnPaymentFailure != nil {
		t.OnPaymentFailure(paidquery.PaymentEvent{
			Type:      paidquery.PaymentEventFailure,
			Timestamp: time.Now(),
			Method:    "HTTP",
			Resource:  url,
			Error:     err,
			Duration:  duration,
		})
	}
}
