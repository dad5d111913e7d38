package models

import "time"

// Session binds a principal to an opaque, server-side revocable session token.
type Session struct {
	ID           string
	PrincipalID  string
	Token        string
	ClientIP     string
	UserAgent    string
	ExpiresAt    time.Time
	LastActivity time.Time
	CreatedAt    time.Time
}

// Valid reports whether the session is still usable at now.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
