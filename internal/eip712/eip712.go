// Package eip712 builds and signs the typed TransferWithAuthorization
// message. The encoding must match the verifying contract byte for byte:
// domain separator over {name, version, chainId, verifyingContract}, then
// the 0x1901 prefix, then keccak256.
package eip712

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	paidquery "github.com/paidquery/paidquery-go"
)

func typedData(domain paidquery.DomainParams, auth paidquery.Authorization) (apitypes.TypedData, error) {
	value, err := parseUint256(auth.Value)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("invalid value: %w", err)
	}
	validAfter, err := parseUint256(auth.ValidAfter)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("invalid validAfter: %w", err)
	}
	validBefore, err := parseUint256(auth.ValidBefore)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("invalid validBefore: %w", err)
	}
	nonce, err := parseNonce(auth.Nonce)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("invalid nonce: %w", err)
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(domain.ChainID)),
			VerifyingContract: common.HexToAddress(domain.VerifyingContract).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        common.HexToAddress(auth.From).Hex(),
			"to":          common.HexToAddress(auth.To).Hex(),
			"value":       (*math.HexOrDecimal256)(value),
			"validAfter":  (*math.HexOrDecimal256)(validAfter),
			"validBefore": (*math.HexOrDecimal256)(validBefore),
			"nonce":       common.BytesToHash(nonce[:]).Hex(),
		},
	}, nil
}

// Digest returns the keccak256 digest the signature covers.
func Digest(domain paidquery.DomainParams, auth paidquery.Authorization) ([]byte, error) {
	td, err := typedData(domain, auth)
	if err != nil {
		return nil, err
	}

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := td.HashStruct("TransferWithAuthorization", td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256(rawData), nil
}

// Sign produces the hex-encoded 65-byte signature over the typed digest,
// with the recovery id shifted to the Ethereum convention (v = 27/28).
func Sign(privateKey *ecdsa.PrivateKey, domain paidquery.DomainParams, auth paidquery.Authorization) (string, error) {
	digest, err := Digest(domain, auth)
	if err != nil {
		return "", err
	}

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign authorization: %w", err)
	}
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

// RecoverSigner recovers the address that produced the signature over the
// typed digest. Used by server middleware to check that the payload was
// signed by the claimed payer.
func RecoverSigner(domain paidquery.DomainParams, auth paidquery.Authorization, signature string) (common.Address, error) {
	digest, err := Digest(domain, auth)
	if err != nil {
		return common.Address{}, err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[64] >= 27 {
		sig = append(append([]byte{}, sig[:64]...), sig[64]-27)
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func parseUint256(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("not a non-negative decimal: %q", s)
	}
	return v, nil
}

func parseNonce(s string) ([32]byte, error) {
	var nonce [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nonce, err
	}
	if len(b) != 32 {
		return nonce, fmt.Errorf("nonce must be 32 bytes, got %d", len(b))
	}
	copy(nonce[:], b)
	return nonce, nil
}
