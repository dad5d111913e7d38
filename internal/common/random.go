package common

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// TokenGenerator produces opaque, URL-safe tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// RandomTokenGenerator draws RandomTokenBytes from crypto/rand and encodes them
// with unpadded base64url.
type RandomTokenGenerator struct{}

// NewToken returns a fresh 256-bit token.
func (RandomTokenGenerator) NewToken() (string, error) {
	return MakeRandURLString(RandomTokenBytes)
}

// MakeRandURLString generates size random bytes and returns them encoded with
// base64.RawURLEncoding.
func MakeRandURLString(size int) (string, error) {
	b, err := GenerateRandByteArray(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MakeRandHexString generates size random bytes and hex-encodes them; the
// result is twice as long as size.
func MakeRandHexString(size int) (string, error) {
	b, err := GenerateRandByteArray(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray returns size bytes from crypto/rand.
func GenerateRandByteArray(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// TokenPrefix returns a log-safe prefix of an opaque token.
func TokenPrefix(token string) string {
	if len(token) <= TokenPrefixLength {
		return token
	}
	return token[:TokenPrefixLength] + "..."
}
