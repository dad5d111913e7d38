package auth

import (
	"context"
	"slices"
)

// Identity is the authenticated caller. It is built once per request from a
// validated bearer token plus the session it presented, and then passed
// explicitly to services.
type Identity struct {
	PrincipalID string
	Email       string
	Role        string
	Permissions []string
	SessionID   string
}

// HasPermission reports whether perm was granted when the token was minted.
func (i Identity) HasPermission(perm string) bool {
	return slices.Contains(i.Permissions, perm)
}

type identityKey struct{}

// WithIdentity stores id in ctx for the transport layer.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
