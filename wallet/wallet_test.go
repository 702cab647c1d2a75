package wallet

import (
	"errors"
	"strings"
	"testing"

	paidquery "github.com/paidquery/paidquery-go"
)

// Foundry/Anvil first default account. Well-known test key.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func testDomain() paidquery.DomainParams {
	return paidquery.DomainParams{
		Name:              "USDC",
		Version:           "2",
		ChainID:           84532,
		VerifyingContract: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	}
}

func testAuth() paidquery.Authorization {
	return paidquery.Authorization{
		From:        testAddress,
		To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Value:       "1000000",
		ValidAfter:  "1699999940",
		ValidBefore: "1700000300",
		Nonce:       "0x0000000000000000000000000000000000000000000000000000000000000001",
	}
}

func TestNewLocalSigner(t *testing.T) {
	t.Run("derives address", func(t *testing.T) {
		signer, err := NewLocalSigner(testPrivateKey)
		if err != nil {
			t.Fatalf("NewLocalSigner failed: %v", err)
		}
		if !strings.EqualFold(signer.Address(), testAddress) {
			t.Errorf("Address() = %s, want %s", signer.Address(), testAddress)
		}
	})

	t.Run("accepts 0x prefix", func(t *testing.T) {
		signer, err := NewLocalSigner("0x" + testPrivateKey)
		if err != nil {
			t.Fatalf("NewLocalSigner failed: %v", err)
		}
		if !strings.EqualFold(signer.Address(), testAddress) {
			t.Errorf("Address() = %s, want %s", signer.Address(), testAddress)
		}
	})

	t.Run("rejects invalid key", func(t *testing.T) {
		for _, key := range []string{"", "zz", "0x1234"} {
			if _, err := NewLocalSigner(key); !errors.Is(err, paidquery.ErrInvalidKey) {
				t.Errorf("NewLocalSigner(%q) = %v, want ErrInvalidKey", key, err)
			}
		}
	})
}

func TestNewLocalSignerFromKeystore_MissingFile(t *testing.T) {
	_, err := NewLocalSignerFromKeystore("/nonexistent/keystore.json", "pass")
	if !errors.Is(err, paidquery.ErrInvalidKeystore) {
		t.Errorf("got %v, want ErrInvalidKeystore", err)
	}
}

func TestLocalSigner_SignAuthorization(t *testing.T) {
	signer, err := NewLocalSigner(testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}

	signature, err := signer.SignAuthorization(testDomain(), testAuth())
	if err != nil {
		t.Fatalf("SignAuthorization failed: %v", err)
	}
	if !strings.HasPrefix(signature, "0x") || len(signature) != 132 {
		t.Errorf("unexpected signature %q", signature)
	}
}

func TestApprovalSigner(t *testing.T) {
	inner, err := NewLocalSigner(testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}

	t.Run("approved signature passes through", func(t *testing.T) {
		var seen paidquery.Authorization
		signer := NewApprovalSigner(inner, func(domain paidquery.DomainParams, auth paidquery.Authorization) bool {
			seen = auth
			return true
		})

		signature, err := signer.SignAuthorization(testDomain(), testAuth())
		if err != nil {
			t.Fatalf("SignAuthorization failed: %v", err)
		}
		if signature == "" {
			t.Error("expected signature")
		}
		if seen.Value != "1000000" {
			t.Errorf("approval hook saw value %q, want 1000000", seen.Value)
		}
	})

	t.Run("declined approval is user rejection", func(t *testing.T) {
		signer := NewApprovalSigner(inner, func(paidquery.DomainParams, paidquery.Authorization) bool {
			return false
		})

		_, err := signer.SignAuthorization(testDomain(), testAuth())
		if !errors.Is(err, paidquery.ErrUserRejected) {
			t.Errorf("got %v, want ErrUserRejected", err)
		}
	})

	t.Run("address comes from the wrapped signer", func(t *testing.T) {
		signer := NewApprovalSigner(inner, nil)
		if signer.Address() != inner.Address() {
			t.Errorf("Address() = %s, want %s", signer.Address(), inner.Address())
		}
	})
}
