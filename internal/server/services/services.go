// Package services contains server-side business logic: sessions, one-time
// token flows (account verification, email change, password reset) and the
// login coordinator built on top of them.
//
// Every mutating flow runs in one transaction that first locks the owning
// principal's row, so concurrent calls for the same principal are serialized
// while different principals proceed independently.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/logging"
	"github.com/dascribs/authcore/internal/server/config"
	"github.com/dascribs/authcore/internal/server/metrics"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/repositories/repomanager"
	"github.com/dascribs/authcore/internal/timex"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Repos   repomanager.RepositoryManager
	Config  *config.Config
	Clock   timex.Clock
	Tokens  common.TokenGenerator
	Log     logging.Logger
	Metrics *metrics.Collectors
}

// withDefaults fills optional collaborators.
func (d Deps) withDefaults(module string) Deps {
	if d.Clock == nil {
		d.Clock = timex.SystemClock{}
	}
	if d.Tokens == nil {
		d.Tokens = common.RandomTokenGenerator{}
	}
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	d.Log = d.Log.With("module", module)
	return d
}

// expected are outcomes returned to callers unchanged.
var expected = []error{
	common.ErrInvalidCredentials,
	common.ErrAccountDeactivated,
	common.ErrEmailNotVerified,
	common.ErrSessionNotFound,
	common.ErrSessionExpired,
	common.ErrTokenNotFound,
	common.ErrTokenInvalidOrExpired,
	common.ErrTokenMismatch,
	common.ErrRateLimited,
	common.ErrCooldown,
	common.ErrInvalidToken,
	common.ErrEmailTaken,
	common.ErrInvalidEmail,
	common.ErrWeakPassword,
	common.ErrPasswordReuse,
	common.ErrUnknownRole,
	common.ErrAlreadyVerified,
	common.ErrSameEmail,
	common.ErrorNotFound,
	context.Canceled,
	context.DeadlineExceeded,
}

// isExpected reports whether err belongs to the auth error taxonomy.
func isExpected(err error) bool {
	for _, e := range expected {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// result passes taxonomy errors through and turns anything else into
// common.ErrorInternal after logging it.
func result(ctx context.Context, log logging.Logger, op string, err error) error {
	if err == nil || isExpected(err) {
		return err
	}
	log.Error(ctx, op+" failed", "error", err)
	return fmt.Errorf("%w: %s", common.ErrorInternal, op)
}

// normalizeEmail lower-cases addr and checks that it is a bare address.
func normalizeEmail(addr string) (string, error) {
	email := models.NormalizeEmail(addr)
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", common.ErrInvalidEmail
	}
	return email, nil
}
