package paidquery

import "strings"

// Selector chooses one payment method from the accepted-methods list of a
// 402 challenge. Selection is a configuration point, not a hardcoded policy:
// servers are expected to order preferred schemes first, but callers may
// restrict the choice to assets and networks they are willing to pay on.
type Selector interface {
	// Select returns the chosen requirement, or an error when the list is
	// empty (ErrNoPaymentMethod) or nothing passes the policy.
	Select(accepts []PaymentRequirements) (*PaymentRequirements, error)
}

// FirstAccepted picks the first accepted method (index 0). This is the
// documented default: the server lists its preferred scheme first.
type FirstAccepted struct{}

// Select implements Selector.
func (FirstAccepted) Select(accepts []PaymentRequirements) (*PaymentRequirements, error) {
	if len(accepts) == 0 {
		return nil, NewPaymentError(ErrCodeNoPaymentMethod, "accepted-methods list is empty", ErrNoPaymentMethod)
	}
	return &accepts[0], nil
}

// AllowList picks the first accepted method whose network and asset pass the
// configured allow-lists. An empty list permits everything for that field.
type AllowList struct {
	// Networks permits payments only on these network identifiers.
	Networks []string

	// Assets permits payments only in these asset contract addresses.
	Assets []string
}

// Select implements Selector.
func (f AllowList) Select(accepts []PaymentRequirements) (*PaymentRequirements, error) {
	if len(accepts) == 0 {
		return nil, NewPaymentError(ErrCodeNoPaymentMethod, "accepted-methods list is empty", ErrNoPaymentMethod)
	}
	for i := range accepts {
		req := &accepts[i]
		if f.allows(req) {
			return req, nil
		}
	}
	options := make([]string, 0, len(accepts))
	for _, req := range accepts {
		options = append(options, req.Network+":"+req.Asset)
	}
	return nil, NewPaymentError(ErrCodeNoPaymentMethod,
		"no accepted method passes the allow-list", ErrNoPaymentMethod).
		WithDetails("options", strings.Join(options, ", "))
}

func (f AllowList) allows(req *PaymentRequirements) bool {
	if len(f.Networks) > 0 && !containsFold(f.Networks, req.Network) {
		return false
	}
	if len(f.Assets) > 0 && !containsFold(f.Assets, req.Asset) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
