// Package sessions declares the repository contract for server-side login sessions.
package sessions

import (
	"context"
	"time"

	"github.com/dascribs/authcore/internal/server/models"
)

// Repository persists sessions. "Active" always means expires_at > now.
//
// Deletes are idempotent: removing an absent row is not an error and simply
// reports zero affected rows.
type Repository interface {
	Create(ctx context.Context, s *models.Session) error

	// GetByToken returns common.ErrorNotFound when absent. Expired rows are returned as-is.
	GetByToken(ctx context.Context, token string) (*models.Session, error)

	// Touch refreshes last_activity.
	Touch(ctx context.Context, id string, at time.Time) error

	// ListActive returns active sessions, most recently active first.
	ListActive(ctx context.Context, principalID string, now time.Time) ([]models.Session, error)
	CountActive(ctx context.Context, principalID string, now time.Time) (int, error)

	// DeleteOldestActive removes the n active sessions with the oldest last_activity.
	DeleteOldestActive(ctx context.Context, principalID string, now time.Time, n int) (int64, error)

	DeleteByID(ctx context.Context, id string) (int64, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	// DeleteForPrincipal removes one session only if it belongs to principalID.
	DeleteForPrincipal(ctx context.Context, principalID, id string) (int64, error)
	DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error)

	// DeleteExpired removes every row with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
