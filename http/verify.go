package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/internal/eip712"
)

// VerifyPayment checks an incoming payment payload against one accepted
// requirement: protocol version, scheme/network match, value, validity
// window, recipient, and that the EIP-712 signature recovers to the claimed
// payer. It does not settle anything on-chain.
//
// Returns the verified payer address.
func VerifyPayment(payment *paidquery.PaymentPayload, req *paidquery.PaymentRequirements, defaults *paidquery.DomainDefaults, now time.Time) (string, error) {
	if payment.X402Version != paidquery.X402Version {
		return "", paidquery.ErrUnsupportedVersion
	}
	if payment.Scheme != req.Scheme || payment.Network != req.Network {
		return "", fmt.Errorf("%w: payload is for %s/%s, requirement is %s/%s",
			paidquery.ErrUnsupportedScheme, payment.Scheme, payment.Network, req.Scheme, req.Network)
	}

	auth := payment.Payload.Authorization

	value, err := paidquery.ParseAmount(auth.Value)
	if err != nil {
		return "", err
	}
	required, err := paidquery.ParseAmount(req.MaxAmountRequired)
	if err != nil {
		return "", err
	}
	if value.Cmp(required) < 0 {
		return "", fmt.Errorf("%w: authorized %s, required %s",
			paidquery.ErrPaymentRejected, auth.Value, req.MaxAmountRequired)
	}
	if !strings.EqualFold(auth.To, req.PayTo) {
		return "", fmt.Errorf("%w: wrong recipient %s", paidquery.ErrPaymentRejected, auth.To)
	}

	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad validAfter: %v", paidquery.ErrDecode, err)
	}
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad validBefore: %v", paidquery.ErrDecode, err)
	}
	if validAfter >= validBefore {
		return "", fmt.Errorf("%w: empty validity window", paidquery.ErrPaymentRejected)
	}
	unix := now.Unix()
	if unix < validAfter || unix >= validBefore {
		return "", fmt.Errorf("%w: authorization outside validity window", paidquery.ErrPaymentRejected)
	}

	domain, err := paidquery.ResolveDomain(req, defaults)
	if err != nil {
		return "", err
	}
	signer, err := eip712.RecoverSigner(domain, auth, payment.Payload.Signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", paidquery.ErrPaymentRejected, err)
	}
	if !strings.EqualFold(signer.Hex(), auth.From) {
		return "", fmt.Errorf("%w: signature recovers to %s, payload claims %s",
			paidquery.ErrPaymentRejected, signer.Hex(), auth.From)
	}

	return signer.Hex(), nil
}
