package models

import "time"

// TokenType tags what a one-time token authorizes.
type TokenType string

const (
	TokenAccountVerification     TokenType = "ACCOUNT_VERIFICATION"
	TokenEmailChangeVerification TokenType = "EMAIL_CHANGE_VERIFICATION"
	TokenPasswordReset           TokenType = "PASSWORD_RESET"
)

// Known reports whether t is one of the defined token types.
func (t TokenType) Known() bool {
	switch t {
	case TokenAccountVerification, TokenEmailChangeVerification, TokenPasswordReset:
		return true
	}
	return false
}

// OneTimeToken is a single-use, typed, expiring credential.
//
// TargetEmail is the address the token certifies: the principal's current
// email for account verification, the requested new email for email change.
type OneTimeToken struct {
	ID          string
	PrincipalID string
	Token       string
	TargetEmail string
	Type        TokenType
	ExpiresAt   time.Time
	Used        bool
	CreatedAt   time.Time
}

// Valid reports whether the token can still be consumed at now.
func (t *OneTimeToken) Valid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
