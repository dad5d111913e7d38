// Package models holds the persistent entities of the auth core.
package models

import (
	"strings"
	"time"
)

// Principal is an identity subject to authentication.
//
// PendingEmail is empty unless an email change is in flight.
// Principals are never deleted, only deactivated.
type Principal struct {
	ID                 string
	Email              string
	PasswordHash       string
	DisplayName        string
	Role               string
	Active             bool
	EmailVerified      bool
	PendingEmail       string
	VerificationSentAt *time.Time
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Name returns the name used to greet the principal in messages.
func (p *Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
