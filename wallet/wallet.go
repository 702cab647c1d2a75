// Package wallet provides signing backends for payment authorizations.
//
// LocalSigner signs with an in-process secp256k1 key; ApprovalSigner wraps
// any backend with an interactive approval hook. Backends are chosen at
// construction time and all satisfy the paidquery.Signer interface.
package wallet

import (
	"crypto/ecdsa"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/internal/eip712"
)

// LocalSigner signs authorizations with a local secp256k1 private key.
// The key never leaves the process and is never logged.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewLocalSigner creates a signer from a hex-encoded private key,
// with or without the 0x prefix.
func NewLocalSigner(privateKeyHex string) (*LocalSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, paidquery.ErrInvalidKey
	}
	return NewLocalSignerFromKey(privateKey)
}

// NewLocalSignerFromKey creates a signer from an existing ECDSA key.
func NewLocalSignerFromKey(key *ecdsa.PrivateKey) (*LocalSigner, error) {
	if key == nil {
		return nil, paidquery.ErrInvalidKey
	}
	return &LocalSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// NewLocalSignerFromKeystore creates a signer from an encrypted geth
// keystore file. Returns ErrInvalidKeystore when the file is unreadable or
// the passphrase does not decrypt it.
func NewLocalSignerFromKeystore(path, passphrase string) (*LocalSigner, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, paidquery.ErrInvalidKeystore
	}
	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, paidquery.ErrInvalidKeystore
	}
	return NewLocalSignerFromKey(key.PrivateKey)
}

// Address implements paidquery.Signer.
func (s *LocalSigner) Address() string {
	return s.address.Hex()
}

// SignAuthorization implements paidquery.Signer.
func (s *LocalSigner) SignAuthorization(domain paidquery.DomainParams, auth paidquery.Authorization) (string, error) {
	if s.privateKey == nil {
		return "", paidquery.NewPaymentError(paidquery.ErrCodeSigningFailed,
			"signing credential unavailable", paidquery.ErrSigningFailed)
	}
	signature, err := eip712.Sign(s.privateKey, domain, auth)
	if err != nil {
		return "", paidquery.NewPaymentError(paidquery.ErrCodeSigningFailed,
			"failed to sign authorization", err)
	}
	return signature, nil
}

// ApprovalFunc decides whether a pending authorization may be signed.
// Returning false declines the payment.
type ApprovalFunc func(domain paidquery.DomainParams, auth paidquery.Authorization) bool

// ApprovalSigner wraps another signer with an interactive approval step.
// A declined approval surfaces as ErrUserRejected and the flow makes no
// further attempt.
type ApprovalSigner struct {
	inner   paidquery.Signer
	approve ApprovalFunc
}

// NewApprovalSigner wraps inner so that approve is consulted before every
// signature.
func NewApprovalSigner(inner paidquery.Signer, approve ApprovalFunc) *ApprovalSigner {
	return &ApprovalSigner{inner: inner, approve: approve}
}

// Address implements paidquery.Signer.
func (s *ApprovalSigner) Address() string {
	return s.inner.Address()
}

// SignAuthorization implements paidquery.Signer.
func (s *ApprovalSigner) SignAuthorization(domain paidquery.DomainParams, auth paidquery.Authorization) (string, error) {
	if s.approve != nil && !s.approve(domain, auth) {
		return "", paidquery.NewPaymentError(paidquery.ErrCodeUserRejected,
			"authorization declined", paidquery.ErrUserRejected).
			WithDetails("recipient", auth.To).
			WithDetails("value", auth.Value)
	}
	return s.inner.SignAuthorization(domain, auth)
}
