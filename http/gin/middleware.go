// Package gin provides Gin-compatible middleware for x402 payment gating.
// It is a thin adapter that translates gin.Context to stdlib http patterns
// and delegates verification to the http package.
package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	paidquery "github.com/paidquery/paidquery-go"
	pqhttp "github.com/paidquery/paidquery-go/http"
	"github.com/paidquery/paidquery-go/internal/helpers"
)

// Config is an alias for pqhttp.MiddlewareConfig for convenience.
type Config = pqhttp.MiddlewareConfig

// PayerContextKey is the gin context key holding the verified payer address.
const PayerContextKey = "paidquery_payer"

// NewMiddleware creates a Gin middleware that gates handlers behind an x402
// payment. Requests without a valid X-Payment header are aborted with a 402
// challenge; verified requests proceed with the payer address available via
// c.Get(PayerContextKey).
func NewMiddleware(config Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		payment, err := helpers.ParsePaymentHeader(c.Request)
		if err != nil {
			abortPaymentRequired(c, config.Requirements, "")
			return
		}

		req := matchRequirement(payment, config.Requirements)
		if req == nil {
			abortPaymentRequired(c, config.Requirements, "payment does not match any accepted method")
			return
		}

		payer, err := pqhttp.VerifyPayment(payment, req, config.DomainDefaults, time.Now())
		if err != nil {
			logger.Info("rejecting payment", zap.String("network", payment.Network), zap.Error(err))
			abortPaymentRequired(c, config.Requirements, err.Error())
			return
		}

		if config.Settle != nil {
			settlement, err := config.Settle(payment)
			if err != nil {
				logger.Error("settlement failed", zap.Error(err))
				abortPaymentRequired(c, config.Requirements, "settlement failed")
				return
			}
			if settlement != nil {
				if encoded, err := encodeSettlement(settlement); err == nil {
					c.Header(helpers.PaymentResponseHeader, encoded)
				}
			}
		}

		c.Set(PayerContextKey, payer)
		c.Next()
	}
}

func abortPaymentRequired(c *gin.Context, accepts []paidquery.PaymentRequirements, errMsg string) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, paidquery.PaymentRequired{
		X402Version: paidquery.X402Version,
		Error:       errMsg,
		Accepts:     accepts,
	})
}

func matchRequirement(payment *paidquery.PaymentPayload, requirements []paidquery.PaymentRequirements) *paidquery.PaymentRequirements {
	for i := range requirements {
		req := &requirements[i]
		if req.Scheme == payment.Scheme && req.Network == payment.Network {
			return req
		}
	}
	return nil
}

func encodeSettlement(settlement *paidquery.SettleResponse) (string, error) {
	// Reuse the helper that writes the header on stdlib responses.
	rec := &headerRecorder{header: make(http.Header)}
	if err := helpers.AddPaymentResponseHeader(rec, settlement); err != nil {
		return "", err
	}
	return rec.header.Get(helpers.PaymentResponseHeader), nil
}

type headerRecorder struct {
	header http.Header
}

func (r *headerRecorder) Header() http.Header       { return r.header }
func (r *headerRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (r *headerRecorder) WriteHeader(int)           {}
