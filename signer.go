package paidquery

// Signer holds a signing credential and produces signatures over
// domain-separated authorization messages. Implementations own the
// credential exclusively and never expose, log or persist it.
//
// Backend variants (local key, interactive approval wrappers) are selected
// at construction time; see the wallet package.
type Signer interface {
	// Address returns the public identity the signer signs for.
	// It is stable and requires no network I/O.
	Address() string

	// SignAuthorization signs the EIP-712 typed encoding of auth under the
	// given domain and returns the hex-encoded 65-byte signature.
	// It fails with ErrSigningFailed if the credential is unavailable and
	// with ErrUserRejected if an interactive backend declines.
	SignAuthorization(domain DomainParams, auth Authorization) (string, error)
}
