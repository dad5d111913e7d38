// Package common defines shared constants, sentinel errors and small helpers
// used across the authentication core. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Login outcomes.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrEmailNotVerified   = errors.New("email not verified")

	// Session outcomes.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// One-time token outcomes.
	ErrTokenNotFound         = errors.New("token not found")
	ErrTokenInvalidOrExpired = errors.New("invalid or expired token")
	ErrTokenMismatch         = errors.New("token does not match current account state")

	// Issuance throttling.
	ErrRateLimited = errors.New("rate limited")
	ErrCooldown    = errors.New("cooldown in effect")

	// Bearer token (JWT) outcomes.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")

	// Validation errors.
	ErrEmailTaken      = errors.New("email already registered")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrWeakPassword    = errors.New("password does not meet security requirements")
	ErrPasswordReuse   = errors.New("new password must be different from current password")
	ErrUnknownRole     = errors.New("unknown role")
	ErrAlreadyVerified = errors.New("email already verified")
	ErrSameEmail       = errors.New("new email must be different from current email")
)
