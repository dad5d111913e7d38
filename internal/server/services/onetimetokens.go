package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/config"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/google/uuid"
)

// TokenPolicy bounds how often tokens of one type may be issued.
// Cooldown is measured from the principal's last verification send and is
// only meaningful for account verification.
type TokenPolicy struct {
	TTL      time.Duration
	Window   time.Duration
	Max      int
	Cooldown time.Duration
}

// PoliciesFromConfig derives the per-type policies. Email change shares the
// verification limits but has no cooldown.
func PoliciesFromConfig(cfg *config.Config) map[models.TokenType]TokenPolicy {
	verification := TokenPolicy{
		TTL:    cfg.VerificationTTL,
		Window: cfg.VerificationWindow,
		Max:    cfg.VerificationMax,
	}
	withCooldown := verification
	withCooldown.Cooldown = cfg.VerificationCooldown

	return map[models.TokenType]TokenPolicy{
		models.TokenAccountVerification:     withCooldown,
		models.TokenEmailChangeVerification: verification,
		models.TokenPasswordReset: {
			TTL:    cfg.ResetTTL,
			Window: cfg.ResetWindow,
			Max:    cfg.ResetMax,
		},
	}
}

// Remaining returns how much of the cooldown is left at now, or zero.
func (p TokenPolicy) Remaining(sentAt *time.Time, now time.Time) time.Duration {
	if p.Cooldown <= 0 || sentAt == nil {
		return 0
	}
	if left := sentAt.Add(p.Cooldown).Sub(now); left > 0 {
		return left
	}
	return 0
}

// Effect applies the type-specific outcome of a consumed token to the locked
// principal. It runs in the consuming transaction; returning an error
// leaves the token unused.
type Effect func(ctx context.Context, tx dbx.DBTX, p *models.Principal, t *models.OneTimeToken) error

// OneTimeTokenService implements the shared lifecycle of typed single-use
// tokens: rate-limited issuance that supersedes earlier tokens, and atomic
// single-use consumption.
type OneTimeTokenService struct {
	Deps
	policies map[models.TokenType]TokenPolicy
	// retention is how long an expired token is kept so it still counts
	// toward an issuance window that outlives its TTL.
	retention time.Duration
}

// NewOneTimeTokenService constructs a OneTimeTokenService with the policies
// derived from d.Config.
func NewOneTimeTokenService(d Deps) *OneTimeTokenService {
	policies := PoliciesFromConfig(d.Config)
	return &OneTimeTokenService{
		Deps:      d.withDefaults("onetimetokens"),
		policies:  policies,
		retention: retention(policies),
	}
}

func retention(policies map[models.TokenType]TokenPolicy) time.Duration {
	var keep time.Duration
	for _, p := range policies {
		if d := p.Window - p.TTL; d > keep {
			keep = d
		}
	}
	return keep
}

func (s *OneTimeTokenService) Policy(typ models.TokenType) TokenPolicy {
	return s.policies[typ]
}

// Initiate issues a token of typ certifying targetEmail for principalID and
// returns the plaintext token. It fails with common.ErrRateLimited or a
// *common.CooldownError when the policy forbids another send.
func (s *OneTimeTokenService) Initiate(ctx context.Context, principalID string, typ models.TokenType, targetEmail string) (string, error) {
	var token string
	err := s.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		p, err := s.Repos.Principals(tx).GetByIDForUpdate(ctx, principalID)
		if err != nil {
			return err
		}
		t, err := s.issue(ctx, tx, p, typ, targetEmail)
		if err != nil {
			return err
		}
		token = t.Token
		return nil
	})
	if err != nil {
		return "", result(ctx, s.Log, "initiate token", err)
	}
	s.purge(ctx)
	return token, nil
}

// issue runs inside a transaction that already locked p. It may update p
// (the verification send time) and persists that change itself.
func (s *OneTimeTokenService) issue(ctx context.Context, tx dbx.DBTX, p *models.Principal, typ models.TokenType, targetEmail string) (*models.OneTimeToken, error) {
	policy, ok := s.policies[typ]
	if !ok {
		return nil, fmt.Errorf("unknown token type %q", typ)
	}
	repo := s.Repos.OneTimeTokens(tx)
	now := s.Clock.Now()

	recent, err := repo.CountSince(ctx, p.ID, typ, now.Add(-policy.Window))
	if err != nil {
		return nil, err
	}
	if recent >= policy.Max {
		s.Log.Debug(ctx, "token rate limited", "principal_id", p.ID, "type", typ, "recent", recent)
		return nil, common.ErrRateLimited
	}

	if left := policy.Remaining(p.VerificationSentAt, now); left > 0 {
		return nil, &common.CooldownError{Remaining: left}
	}

	superseded, err := repo.InvalidatePending(ctx, p.ID, typ)
	if err != nil {
		return nil, err
	}

	plain, err := s.Tokens.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	t := &models.OneTimeToken{
		ID:          uuid.NewString(),
		PrincipalID: p.ID,
		Token:       plain,
		TargetEmail: targetEmail,
		Type:        typ,
		ExpiresAt:   now.Add(policy.TTL),
		CreatedAt:   now,
	}
	if err := repo.Create(ctx, t); err != nil {
		return nil, err
	}

	if policy.Cooldown > 0 {
		p.VerificationSentAt = &now
		p.UpdatedAt = now
		if err := s.Repos.Principals(tx).Update(ctx, p); err != nil {
			return nil, err
		}
	}

	s.Metrics.TokenIssued(string(typ))
	s.Log.Info(ctx, "token issued",
		"principal_id", p.ID, "type", typ, "superseded", superseded, "token", common.TokenPrefix(plain))
	return t, nil
}

// Consume redeems token as a token of typ. The lookup, validity and
// identity checks, the effect and the used flag all commit together.
//
// Unknown tokens and tokens of another type fail with common.ErrTokenNotFound;
// used or expired ones with common.ErrTokenInvalidOrExpired; tokens whose
// target address no longer matches the principal with common.ErrTokenMismatch.
func (s *OneTimeTokenService) Consume(ctx context.Context, typ models.TokenType, token string, effect Effect) (*models.Principal, error) {
	var principal *models.Principal
	err := s.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		p, t, err := s.lock(ctx, tx, typ, token)
		if err != nil {
			return err
		}

		if !t.Valid(s.Clock.Now()) {
			return common.ErrTokenInvalidOrExpired
		}
		if err := checkTarget(p, t); err != nil {
			return err
		}

		if effect != nil {
			if err := effect(ctx, tx, p, t); err != nil {
				return err
			}
		}
		p.UpdatedAt = s.Clock.Now()
		err = s.Repos.Principals(tx).Update(ctx, p)
		if errors.Is(err, common.ErrorAlreadyExists) {
			return common.ErrEmailTaken
		}
		if err != nil {
			return err
		}
		if err := s.Repos.OneTimeTokens(tx).MarkUsed(ctx, t.ID); err != nil {
			return err
		}
		principal = p
		return nil
	})

	s.Metrics.TokenConsumed(string(typ), outcome(err))
	if err != nil {
		return nil, result(ctx, s.Log, "consume token", err)
	}
	s.Log.Info(ctx, "token consumed", "principal_id", principal.ID, "type", typ)
	return principal, nil
}

// lock takes the principal row lock before the token row lock, the same
// order issuance uses, and then re-reads the token under lock.
func (s *OneTimeTokenService) lock(ctx context.Context, tx dbx.DBTX, typ models.TokenType, token string) (*models.Principal, *models.OneTimeToken, error) {
	repo := s.Repos.OneTimeTokens(tx)

	t, err := repo.GetByToken(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil, common.ErrTokenNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if t.Type != typ {
		return nil, nil, common.ErrTokenNotFound
	}

	p, err := s.Repos.Principals(tx).GetByIDForUpdate(ctx, t.PrincipalID)
	if err != nil {
		return nil, nil, err
	}

	t, err = repo.GetByTokenForUpdate(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil, common.ErrTokenNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return p, t, nil
}

// Peek reports whether token is a currently consumable token of typ.
func (s *OneTimeTokenService) Peek(ctx context.Context, typ models.TokenType, token string) (bool, error) {
	t, err := s.Repos.OneTimeTokens(s.Repos.Conn()).GetByToken(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, result(ctx, s.Log, "peek token", err)
	}
	return t.Type == typ && t.Valid(s.Clock.Now()), nil
}

// PurgeExpired deletes tokens, used or not, that expired at or before now and
// can no longer count toward any issuance window.
func (s *OneTimeTokenService) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.Repos.OneTimeTokens(s.Repos.Conn()).DeleteExpired(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, result(ctx, s.Log, "purge tokens", err)
	}
	s.Metrics.SweepRemoved("one_time_tokens", n)
	return n, nil
}

// purge is the opportunistic cleanup after a successful issuance.
func (s *OneTimeTokenService) purge(ctx context.Context) {
	if _, err := s.PurgeExpired(ctx, s.Clock.Now()); err != nil {
		s.Log.Warn(ctx, "opportunistic token purge failed", "error", err)
	}
}

// checkTarget rejects tokens issued for an address the principal no longer has.
func checkTarget(p *models.Principal, t *models.OneTimeToken) error {
	switch t.Type {
	case models.TokenAccountVerification:
		if t.TargetEmail != p.Email {
			return common.ErrTokenMismatch
		}
	case models.TokenEmailChangeVerification:
		if p.PendingEmail == "" || t.TargetEmail != p.PendingEmail {
			return common.ErrTokenMismatch
		}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, common.ErrTokenInvalidOrExpired):
		return "invalid_or_expired"
	case errors.Is(err, common.ErrTokenMismatch):
		return "mismatch"
	case isExpected(err):
		return "rejected"
	}
	return "error"
}
