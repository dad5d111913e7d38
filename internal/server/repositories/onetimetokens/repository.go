// Package onetimetokens declares the repository contract for single-use,
// typed, expiring tokens (account verification, email change, password reset).
package onetimetokens

import (
	"context"
	"time"

	"github.com/dascribs/authcore/internal/server/models"
)

// Repository persists one-time tokens. Tokens are stored as issued and
// looked up by their opaque string.
type Repository interface {
	Create(ctx context.Context, t *models.OneTimeToken) error

	// GetByToken returns common.ErrorNotFound when absent. Used or expired rows are returned as-is.
	GetByToken(ctx context.Context, token string) (*models.OneTimeToken, error)

	// GetByTokenForUpdate is GetByToken that also locks the row for the
	// surrounding transaction.
	GetByTokenForUpdate(ctx context.Context, token string) (*models.OneTimeToken, error)

	// MarkUsed flags a single token as consumed.
	MarkUsed(ctx context.Context, id string) error

	// InvalidatePending marks every unused token of the (principal, type) pair as used.
	InvalidatePending(ctx context.Context, principalID string, typ models.TokenType) (int64, error)

	// CountSince counts tokens of the pair created at or after since, used or not.
	CountSince(ctx context.Context, principalID string, typ models.TokenType, since time.Time) (int, error)

	// DeleteExpired removes every token with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
