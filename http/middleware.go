package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/internal/helpers"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PayerContextKey holds the verified payer address in the request context.
const PayerContextKey = contextKey("paidquery_payer")

// SettleFunc settles a verified payment out of band and returns the
// settlement record to attach to the response, or nil to settle later.
type SettleFunc func(payment *paidquery.PaymentPayload) (*paidquery.SettleResponse, error)

// MiddlewareConfig configures the server-side payment gate.
type MiddlewareConfig struct {
	// Requirements are the payment methods this resource accepts,
	// ordered by preference.
	Requirements []paidquery.PaymentRequirements

	// DomainDefaults supplies EIP-712 domain parameters for requirements
	// that omit them.
	DomainDefaults *paidquery.DomainDefaults

	// Settle optionally settles verified payments. When nil the response
	// carries no settlement record and settlement happens out of band.
	Settle SettleFunc

	// Logger receives structured logs. Nop if nil.
	Logger *zap.Logger
}

// NewMiddleware wraps handlers with a payment gate: requests without a valid
// X-Payment header receive a 402 challenge listing the accepted methods;
// requests with a verified payment pass through with the payer address in
// the request context.
func NewMiddleware(config MiddlewareConfig) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payment, err := helpers.ParsePaymentHeader(r)
			if err != nil {
				// No or malformed payment: challenge.
				if err := helpers.SendPaymentRequired(w, config.Requirements, challengeMessage(err)); err != nil {
					logger.Error("failed to write 402 challenge", zap.Error(err))
				}
				return
			}

			req := matchRequirement(payment, config.Requirements)
			if req == nil {
				if err := helpers.SendPaymentRequired(w, config.Requirements,
					"payment does not match any accepted method"); err != nil {
					logger.Error("failed to write 402 challenge", zap.Error(err))
				}
				return
			}

			payer, err := VerifyPayment(payment, req, config.DomainDefaults, time.Now())
			if err != nil {
				logger.Info("rejecting payment",
					zap.String("network", payment.Network),
					zap.Error(err))
				if err := helpers.SendPaymentRequired(w, config.Requirements, err.Error()); err != nil {
					logger.Error("failed to write 402 challenge", zap.Error(err))
				}
				return
			}

			if config.Settle != nil {
				settlement, err := config.Settle(payment)
				if err != nil {
					logger.Error("settlement failed", zap.Error(err))
					if err := helpers.SendPaymentRequired(w, config.Requirements, "settlement failed"); err != nil {
						logger.Error("failed to write 402 challenge", zap.Error(err))
					}
					return
				}
				if err := helpers.AddPaymentResponseHeader(w, settlement); err != nil {
					logger.Error("failed to attach settlement header", zap.Error(err))
				}
			}

			logger.Debug("payment verified",
				zap.String("payer", payer),
				zap.String("network", payment.Network))

			ctx := context.WithValue(r.Context(), PayerContextKey, payer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PayerFromContext returns the verified payer address, if any.
func PayerFromContext(ctx context.Context) (string, bool) {
	payer, ok := ctx.Value(PayerContextKey).(string)
	return payer, ok
}

func matchRequirement(payment *paidquery.PaymentPayload, requirements []paidquery.PaymentRequirements) *paidquery.PaymentRequirements {
	for i := range requirements {
		req := &requirements[i]
		if req.Scheme == payment.Scheme && strings.EqualFold(req.Network, payment.Network) {
			return req
		}
	}
	return nil
}

func challengeMessage(err error) string {
	if err == paidquery.ErrMalformedHeader {
		return ""
	}
	return err.Error()
}
