// Package principals declares the repository contract for authenticated identities.
package principals

import (
	"context"
	"time"

	"github.com/dascribs/authcore/internal/server/models"
)

// Repository persists principals. Lookups by email expect a normalized address.
type Repository interface {
	// Create inserts p. Returns common.ErrorAlreadyExists if the email is taken.
	Create(ctx context.Context, p *models.Principal) (*models.Principal, error)

	// GetByID returns common.ErrorNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.Principal, error)

	// GetByIDForUpdate is GetByID that also locks the row until the
	// surrounding transaction ends. Outside a transaction it behaves like GetByID.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Principal, error)

	// GetByEmail returns common.ErrorNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)

	// Update overwrites every mutable column of p. Returns common.ErrorNotFound
	// for an unknown id and common.ErrorAlreadyExists if the new email is taken.
	Update(ctx context.Context, p *models.Principal) error

	// TouchLastLogin records a successful login.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
