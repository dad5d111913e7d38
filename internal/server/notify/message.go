// Package notify delivers outbound user messages (verification links, reset
// links, notices). Delivery is fire-and-forget from the caller's view: a
// failed Send never undoes state that was already committed.
package notify

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Kind selects the message template on the delivering side.
type Kind string

const (
	KindAccountVerification     Kind = "ACCOUNT_VERIFICATION"
	KindEmailChangeVerification Kind = "EMAIL_CHANGE_VERIFICATION"
	KindPasswordReset           Kind = "PASSWORD_RESET"
	KindWelcome                 Kind = "WELCOME"
	KindPasswordChanged         Kind = "PASSWORD_CHANGED"
	KindEmailChanged            Kind = "EMAIL_CHANGED"
	KindEmailChangeConfirmed    Kind = "EMAIL_CHANGE_CONFIRMED"
)

// Message is one outbound notification. Token and Link are empty for notices.
type Message struct {
	ID            string    `json:"id"`
	To            string    `json:"to"`
	Kind          Kind      `json:"kind"`
	PrincipalName string    `json:"principal_name"`
	Token         string    `json:"token,omitempty"`
	Link          string    `json:"link,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Dispatcher sends messages. Implementations must be safe for concurrent use.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Links builds the frontend URLs embedded in token messages.
type Links struct {
	base string
}

// NewLinks constructs Links rooted at frontendURL.
func NewLinks(frontendURL string) Links {
	return Links{base: strings.TrimRight(frontendURL, "/")}
}

// For returns the link for kind, or "" when the kind carries no token.
func (l Links) For(kind Kind, token string) string {
	var path string
	switch kind {
	case KindAccountVerification:
		path = "/verify-email"
	case KindEmailChangeVerification:
		path = "/verify-email-change"
	case KindPasswordReset:
		path = "/reset-password"
	default:
		return ""
	}
	return l.base + path + "?token=" + url.QueryEscape(token)
}
