package paidquery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// ClockSkewTolerance is how far validAfter is backdated relative to the
// challenge receipt time, absorbing clock drift between client and verifier.
const ClockSkewTolerance = 60 * time.Second

// NonceSize is the size of the anti-replay nonce in bytes.
const NonceSize = 32

// BuildAuthorization deterministically builds the canonical payable
// instruction for one payment requirement, except for the nonce which is
// fresh random per call.
//
//   - Value copies req.MaxAmountRequired verbatim.
//   - ValidAfter is now backdated by ClockSkewTolerance.
//   - ValidBefore is now plus req.MaxTimeoutSeconds.
//
// A non-positive MaxTimeoutSeconds yields ErrInvalidRequirement: such a
// window can never be valid.
func BuildAuthorization(req *PaymentRequirements, payer string, now time.Time) (Authorization, error) {
	if req.MaxTimeoutSeconds <= 0 {
		return Authorization{}, NewPaymentError(ErrCodeInvalidRequirement,
			fmt.Sprintf("non-positive timeout %d", req.MaxTimeoutSeconds), ErrInvalidRequirement)
	}
	if _, err := ParseAmount(req.MaxAmountRequired); err != nil {
		return Authorization{}, NewPaymentError(ErrCodeInvalidRequirement,
			"malformed amount in requirement", err).WithDetails("amount", req.MaxAmountRequired)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return Authorization{}, NewPaymentError(ErrCodeSigningFailed, "failed to generate nonce", err)
	}

	unix := now.Unix()
	return Authorization{
		From:        payer,
		To:          req.PayTo,
		Value:       req.MaxAmountRequired,
		ValidAfter:  strconv.FormatInt(unix-int64(ClockSkewTolerance/time.Second), 10),
		ValidBefore: strconv.FormatInt(unix+int64(req.MaxTimeoutSeconds), 10),
		Nonce:       "0x" + hex.EncodeToString(nonce[:]),
	}, nil
}

// GenerateNonce returns 32 bytes of fresh entropy. The nonce is never
// derived from message content; deriving it would make replays deterministic.
func GenerateNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, err
	}
	return nonce, nil
}

// ResolveDomain determines the EIP-712 verification domain for a payment
// requirement. The domain name and version come from req.Extra when the
// server supplies them, else from the caller-provided defaults. The chain id
// is derived from the network identifier and the verifying contract is the
// requirement's asset address.
//
// When neither the server nor the caller supplies name and version the call
// fails closed with ErrInvalidRequirement rather than guessing: an ambiguous
// verification domain makes the signature replayable across contexts.
func ResolveDomain(req *PaymentRequirements, defaults *DomainDefaults) (DomainParams, error) {
	chainID, err := NetworkChainID(req.Network)
	if err != nil {
		return DomainParams{}, NewPaymentError(ErrCodeInvalidRequirement,
			"unknown network in requirement", err).WithDetails("network", req.Network)
	}

	name, version := extraDomain(req.Extra)
	if name == "" || version == "" {
		if defaults == nil || defaults.Name == "" || defaults.Version == "" {
			return DomainParams{}, NewPaymentError(ErrCodeInvalidRequirement,
				"requirement omits EIP-712 domain name/version and no defaults configured",
				ErrInvalidRequirement).WithDetails("asset", req.Asset)
		}
		if name == "" {
			name = defaults.Name
		}
		if version == "" {
			version = defaults.Version
		}
	}

	return DomainParams{
		Name:              name,
		Version:           version,
		ChainID:           chainID,
		VerifyingContract: req.Asset,
	}, nil
}

func extraDomain(extra map[string]interface{}) (name, version string) {
	if extra == nil {
		return "", ""
	}
	if v, ok := extra["name"].(string); ok {
		name = v
	}
	if v, ok := extra["version"].(string); ok {
		version = v
	}
	return name, version
}
