package services

import (
	"context"
	"errors"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/notify"
)

// EmailVerificationFlow proves ownership of addresses: the account address
// after registration and the new address during an email change.
type EmailVerificationFlow struct {
	Deps
	tokens   *OneTimeTokenService
	notifier *Notifier
}

// NewEmailVerificationFlow constructs an EmailVerificationFlow.
func NewEmailVerificationFlow(d Deps, tokens *OneTimeTokenService, n *Notifier) *EmailVerificationFlow {
	return &EmailVerificationFlow{Deps: d.withDefaults("verification"), tokens: tokens, notifier: n}
}

// SendVerification issues an account verification token for the principal's
// current address and mails it. Already verified principals get
// common.ErrAlreadyVerified; rate limit and cooldown errors pass through.
func (f *EmailVerificationFlow) SendVerification(ctx context.Context, principalID string) error {
	var (
		p     *models.Principal
		token *models.OneTimeToken
	)
	err := f.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		p, err = f.Repos.Principals(tx).GetByIDForUpdate(ctx, principalID)
		if err != nil {
			return err
		}
		if p.EmailVerified {
			return common.ErrAlreadyVerified
		}
		token, err = f.tokens.issue(ctx, tx, p, models.TokenAccountVerification, p.Email)
		return err
	})
	if err != nil {
		return result(ctx, f.Log, "send verification", err)
	}

	f.tokens.purge(ctx)
	f.notifier.Send(ctx, p.Email, notify.KindAccountVerification, p.Name(), token.Token)
	return nil
}

// ResendByEmail is the unauthenticated resend. It always succeeds from the
// caller's point of view so the response reveals nothing about the address.
func (f *EmailVerificationFlow) ResendByEmail(ctx context.Context, email string) error {
	p, err := f.Repos.Principals(f.Repos.Conn()).GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			f.Log.Error(ctx, "resend verification lookup failed", "error", err)
		}
		return nil
	}

	if err := f.SendVerification(ctx, p.ID); err != nil {
		f.Log.Debug(ctx, "resend verification suppressed", "principal_id", p.ID, "reason", err)
	}
	return nil
}

// ResendCooldown returns how long principalID must wait before another
// verification send, or zero.
func (f *EmailVerificationFlow) ResendCooldown(ctx context.Context, principalID string) (time.Duration, error) {
	p, err := f.Repos.Principals(f.Repos.Conn()).GetByID(ctx, principalID)
	if err != nil {
		return 0, result(ctx, f.Log, "resend cooldown", err)
	}
	return f.tokens.Policy(models.TokenAccountVerification).Remaining(p.VerificationSentAt, f.Clock.Now()), nil
}

// Verify consumes an account verification token and marks the address verified.
func (f *EmailVerificationFlow) Verify(ctx context.Context, token string) (*models.Principal, error) {
	p, err := f.tokens.Consume(ctx, models.TokenAccountVerification, token,
		func(_ context.Context, _ dbx.DBTX, p *models.Principal, _ *models.OneTimeToken) error {
			p.EmailVerified = true
			p.VerificationSentAt = nil
			return nil
		})
	if err != nil {
		return nil, err
	}

	f.notifier.Send(ctx, p.Email, notify.KindWelcome, p.Name(), "")
	return p, nil
}

// InitiateEmailChange records newEmail as pending and mails a confirmation
// token to it. The current address stays active until the change completes.
func (f *EmailVerificationFlow) InitiateEmailChange(ctx context.Context, principalID, newEmail string) error {
	email, err := normalizeEmail(newEmail)
	if err != nil {
		return err
	}

	var (
		p     *models.Principal
		token *models.OneTimeToken
	)
	err = f.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		principals := f.Repos.Principals(tx)

		var err error
		p, err = principals.GetByIDForUpdate(ctx, principalID)
		if err != nil {
			return err
		}
		if p.Email == email {
			return common.ErrSameEmail
		}
		taken, err := emailTaken(ctx, principals, email, p.ID)
		if err != nil {
			return err
		}
		if taken {
			return common.ErrEmailTaken
		}

		token, err = f.tokens.issue(ctx, tx, p, models.TokenEmailChangeVerification, email)
		if err != nil {
			return err
		}
		p.PendingEmail = email
		p.UpdatedAt = f.Clock.Now()
		return principals.Update(ctx, p)
	})
	if err != nil {
		return result(ctx, f.Log, "initiate email change", err)
	}

	f.tokens.purge(ctx)
	f.notifier.Send(ctx, email, notify.KindEmailChangeVerification, p.Name(), token.Token)
	return nil
}

// CompleteEmailChange consumes an email change token and swaps the address.
// Both the old and the new address are notified.
func (f *EmailVerificationFlow) CompleteEmailChange(ctx context.Context, token string) (*models.Principal, error) {
	var oldEmail string
	p, err := f.tokens.Consume(ctx, models.TokenEmailChangeVerification, token,
		func(ctx context.Context, tx dbx.DBTX, p *models.Principal, t *models.OneTimeToken) error {
			taken, err := emailTaken(ctx, f.Repos.Principals(tx), t.TargetEmail, p.ID)
			if err != nil {
				return err
			}
			if taken {
				return common.ErrEmailTaken
			}
			oldEmail = p.Email
			p.Email = t.TargetEmail
			p.PendingEmail = ""
			p.EmailVerified = true
			return nil
		})
	if err != nil {
		return nil, err
	}

	f.Log.Info(ctx, "email changed", "principal_id", p.ID)
	f.notifier.Send(ctx, oldEmail, notify.KindEmailChanged, p.Name(), "")
	f.notifier.Send(ctx, p.Email, notify.KindEmailChangeConfirmed, p.Name(), "")
	return p, nil
}

type emailLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)
}

// emailTaken reports whether another principal than selfID owns email.
func emailTaken(ctx context.Context, repo emailLookup, email, selfID string) (bool, error) {
	other, err := repo.GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return other.ID != selfID, nil
}
