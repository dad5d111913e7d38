package common

const (
	// SessionTokenHeaderName carries the opaque session token alongside the bearer token.
	SessionTokenHeaderName = "X-Session-Token"

	// RandomTokenBytes is the entropy of every opaque token (256 bits).
	RandomTokenBytes = 32

	// TokenPrefixLength is how much of an opaque token may appear in logs or listings.
	TokenPrefixLength = 8
)
