package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/notify"
	"github.com/dascribs/authcore/internal/server/password"
)

// PasswordResetFlow covers forgotten-password recovery and authenticated
// password changes. Both end every session of the principal.
type PasswordResetFlow struct {
	Deps
	tokens   *OneTimeTokenService
	notifier *Notifier
	hasher   password.Hasher
}

// NewPasswordResetFlow constructs a PasswordResetFlow.
func NewPasswordResetFlow(d Deps, tokens *OneTimeTokenService, n *Notifier, h password.Hasher) *PasswordResetFlow {
	return &PasswordResetFlow{Deps: d.withDefaults("passwordreset"), tokens: tokens, notifier: n, hasher: h}
}

// RequestPasswordReset mails a reset token when email belongs to a principal.
// The result is nil whether or not the address exists, and whether or not the
// rate limit suppressed the send.
func (f *PasswordResetFlow) RequestPasswordReset(ctx context.Context, email string) error {
	p, err := f.Repos.Principals(f.Repos.Conn()).GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			f.Log.Error(ctx, "password reset lookup failed", "error", err)
		}
		return nil
	}

	token, err := f.tokens.Initiate(ctx, p.ID, models.TokenPasswordReset, p.Email)
	if err != nil {
		f.Log.Debug(ctx, "password reset suppressed", "principal_id", p.ID, "reason", err)
		return nil
	}

	f.notifier.Send(ctx, p.Email, notify.KindPasswordReset, p.Name(), token)
	return nil
}

// ValidateResetToken reports whether token could currently reset a password.
// It does not consume the token.
func (f *PasswordResetFlow) ValidateResetToken(ctx context.Context, token string) (bool, error) {
	return f.tokens.Peek(ctx, models.TokenPasswordReset, token)
}

// ResetPassword consumes a reset token, stores the new password and
// terminates every session of the principal in the same transaction.
func (f *PasswordResetFlow) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := password.CheckStrength(newPassword, f.Config.MinPasswordLength); err != nil {
		return err
	}
	hash, err := f.hasher.Hash(newPassword)
	if err != nil {
		return result(ctx, f.Log, "hash password", err)
	}

	var ended int64
	p, err := f.tokens.Consume(ctx, models.TokenPasswordReset, token,
		func(ctx context.Context, tx dbx.DBTX, p *models.Principal, _ *models.OneTimeToken) error {
			same, err := f.hasher.Verify(newPassword, p.PasswordHash)
			if err != nil {
				return fmt.Errorf("verify previous password: %w", err)
			}
			if same {
				return common.ErrPasswordReuse
			}
			p.PasswordHash = hash
			ended, err = f.Repos.Sessions(tx).DeleteAllForPrincipal(ctx, p.ID)
			return err
		})
	if err != nil {
		return err
	}

	f.Log.Info(ctx, "password reset", "principal_id", p.ID, "sessions_ended", ended)
	f.notifier.Send(ctx, p.Email, notify.KindPasswordChanged, p.Name(), "")
	return nil
}

// ChangePassword replaces the password of an authenticated principal after
// checking the current one. All sessions, including the caller's, end.
func (f *PasswordResetFlow) ChangePassword(ctx context.Context, principalID, current, next string) error {
	if current == next {
		return common.ErrPasswordReuse
	}
	if err := password.CheckStrength(next, f.Config.MinPasswordLength); err != nil {
		return err
	}
	hash, err := f.hasher.Hash(next)
	if err != nil {
		return result(ctx, f.Log, "hash password", err)
	}

	var p *models.Principal
	err = f.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		principals := f.Repos.Principals(tx)

		var err error
		p, err = principals.GetByIDForUpdate(ctx, principalID)
		if err != nil {
			return err
		}
		ok, err := f.hasher.Verify(current, p.PasswordHash)
		if err != nil {
			return fmt.Errorf("verify current password: %w", err)
		}
		if !ok {
			return common.ErrInvalidCredentials
		}

		p.PasswordHash = hash
		p.UpdatedAt = f.Clock.Now()
		if err := principals.Update(ctx, p); err != nil {
			return err
		}
		_, err = f.Repos.Sessions(tx).DeleteAllForPrincipal(ctx, p.ID)
		return err
	})
	if err != nil {
		return result(ctx, f.Log, "change password", err)
	}

	f.Log.Info(ctx, "password changed", "principal_id", p.ID)
	f.notifier.Send(ctx, p.Email, notify.KindPasswordChanged, p.Name(), "")
	return nil
}
