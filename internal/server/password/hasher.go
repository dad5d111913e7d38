// Package password hashes and verifies user passwords and enforces the
// minimum strength policy.
package password

import (
	"fmt"
	"unicode"

	"github.com/dascribs/authcore/internal/common"
)

// Hasher turns a plaintext password into a self-describing digest and checks
// candidates against it. Verify must compare in constant time.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// New returns the hasher registered under kind ("argon2id" or "bcrypt").
func New(kind string) (Hasher, error) {
	switch kind {
	case "argon2id":
		return NewArgon2id(DefaultArgon2Params), nil
	case "bcrypt":
		return NewBcrypt(0), nil
	}
	return nil, fmt.Errorf("unknown password hasher %q", kind)
}

// CheckStrength enforces the password policy: at least minLen characters,
// at least one letter and at least one digit.
func CheckStrength(plain string, minLen int) error {
	if len([]rune(plain)) < minLen {
		return fmt.Errorf("%w: must be at least %d characters", common.ErrWeakPassword, minLen)
	}

	var letter, digit bool
	for _, r := range plain {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: must contain a letter and a digit", common.ErrWeakPassword)
	}
	return nil
}
