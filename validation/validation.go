// Package validation validates x402 payment data: addresses, amounts,
// networks and full payment requirements. The client validates challenges
// before signing; server middleware validates configuration at startup.
package validation

import (
	"fmt"
	"regexp"

	paidquery "github.com/paidquery/paidquery-go"
)

// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
var evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateAmount validates that an amount string is a non-negative decimal
// integer in atomic units. Zero is allowed for free-with-signature flows.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("%w: amount cannot be empty", paidquery.ErrInvalidAmount)
	}
	if _, err := paidquery.ParseAmount(amount); err != nil {
		return fmt.Errorf("%w: %q", paidquery.ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateNetwork validates a network identifier against the known set.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("%w: network cannot be empty", paidquery.ErrInvalidNetwork)
	}
	if !paidquery.KnownNetwork(network) {
		return fmt.Errorf("%w: %q", paidquery.ErrInvalidNetwork, network)
	}
	return nil
}

// ValidateAddress validates an EVM address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidateRequirements checks one accepted payment method end to end:
// scheme, network, addresses, amount and timeout. A requirement that fails
// here is unusable and must not be signed.
func ValidateRequirements(req paidquery.PaymentRequirements) error {
	switch req.Scheme {
	case paidquery.SchemeExact:
	case "":
		return fmt.Errorf("%w: scheme cannot be empty", paidquery.ErrInvalidRequirement)
	default:
		return fmt.Errorf("%w: scheme %q", paidquery.ErrUnsupportedScheme, req.Scheme)
	}

	if err := ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("%w: %v", paidquery.ErrInvalidRequirement, err)
	}
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("%w: %v", paidquery.ErrInvalidRequirement, err)
	}
	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("%w: payTo %v", paidquery.ErrInvalidRequirement, err)
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("%w: asset %v", paidquery.ErrInvalidRequirement, err)
	}

	// A non-positive window is never valid.
	if req.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: non-positive timeout %d", paidquery.ErrInvalidRequirement, req.MaxTimeoutSeconds)
	}

	if req.Extra != nil {
		if name, ok := req.Extra["name"].(string); ok && name == "" {
			return fmt.Errorf("%w: EIP-712 domain name cannot be empty", paidquery.ErrInvalidRequirement)
		}
		if version, ok := req.Extra["version"].(string); ok && version == "" {
			return fmt.Errorf("%w: EIP-712 domain version cannot be empty", paidquery.ErrInvalidRequirement)
		}
	}

	return nil
}
