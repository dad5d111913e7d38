package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/config"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoliciesFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	p := PoliciesFromConfig(cfg)

	assert.Equal(t, TokenPolicy{TTL: 24 * time.Hour, Window: 24 * time.Hour, Max: 5, Cooldown: 2 * time.Minute},
		p[models.TokenAccountVerification])
	assert.Equal(t, TokenPolicy{TTL: 24 * time.Hour, Window: 24 * time.Hour, Max: 5},
		p[models.TokenEmailChangeVerification])
	assert.Equal(t, TokenPolicy{TTL: time.Hour, Window: time.Hour, Max: 3}, p[models.TokenPasswordReset])
}

func TestTokenPolicy_Remaining(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := TokenPolicy{Cooldown: 2 * time.Minute}

	assert.Zero(t, p.Remaining(nil, now))
	sent := now.Add(-30 * time.Second)
	assert.Equal(t, 90*time.Second, p.Remaining(&sent, now))
	old := now.Add(-5 * time.Minute)
	assert.Zero(t, p.Remaining(&old, now))
	assert.Zero(t, TokenPolicy{}.Remaining(&sent, now))
}

func TestOneTimeTokens_ConsumeExactlyOnce(t *testing.T) {
	for _, typ := range []models.TokenType{models.TokenPasswordReset, models.TokenAccountVerification} {
		t.Run(string(typ), func(t *testing.T) {
			f := newFixture(t)
			p := f.registerUnverified(t, "once@example.com")
			f.clock.Advance(f.cfg.VerificationCooldown)

			token, err := f.tokens.Initiate(f.ctx, p.ID, typ, p.Email)
			require.NoError(t, err)

			got, err := f.tokens.Consume(f.ctx, typ, token, nil)
			require.NoError(t, err)
			assert.Equal(t, p.ID, got.ID)

			_, err = f.tokens.Consume(f.ctx, typ, token, nil)
			assert.ErrorIs(t, err, common.ErrTokenInvalidOrExpired)
		})
	}
}

func TestOneTimeTokens_NewTokenSupersedesPending(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "supersede@example.com")

	first, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)
	second, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = f.tokens.Consume(f.ctx, models.TokenPasswordReset, first, nil)
	assert.ErrorIs(t, err, common.ErrTokenInvalidOrExpired)

	ok, err := f.tokens.Peek(f.ctx, models.TokenPasswordReset, first)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.tokens.Consume(f.ctx, models.TokenPasswordReset, second, nil)
	assert.NoError(t, err)
}

func TestOneTimeTokens_SupersessionIsPerType(t *testing.T) {
	f := newFixture(t)
	p := f.registerUnverified(t, "per-type@example.com")
	verify := f.lastToken(t, p.Email, notify.KindAccountVerification)

	_, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)

	_, err = f.verification.Verify(f.ctx, verify)
	assert.NoError(t, err)
}

func TestOneTimeTokens_ExpiredIsInvalidNotMissing(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "expired@example.com")

	token, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)

	f.clock.Advance(f.cfg.ResetTTL)
	_, err = f.tokens.Consume(f.ctx, models.TokenPasswordReset, token, nil)
	assert.ErrorIs(t, err, common.ErrTokenInvalidOrExpired)
	assert.NotErrorIs(t, err, common.ErrTokenNotFound)
}

func TestOneTimeTokens_UnknownOrWrongType(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "wrongtype@example.com")

	_, err := f.tokens.Consume(f.ctx, models.TokenPasswordReset, "no-such-token", nil)
	assert.ErrorIs(t, err, common.ErrTokenNotFound)

	token, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)
	_, err = f.tokens.Consume(f.ctx, models.TokenEmailChangeVerification, token, nil)
	assert.ErrorIs(t, err, common.ErrTokenNotFound)

	_, err = f.tokens.Consume(f.ctx, models.TokenPasswordReset, token, nil)
	assert.NoError(t, err, "a wrong-type attempt does not burn the token")
}

func TestOneTimeTokens_RateLimit(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "limit@example.com")

	for i := 0; i < f.cfg.ResetMax; i++ {
		_, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	_, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	assert.ErrorIs(t, err, common.ErrRateLimited)

	f.clock.Advance(f.cfg.ResetWindow)
	_, err = f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	assert.NoError(t, err)
}

func TestOneTimeTokens_CooldownCountsDown(t *testing.T) {
	f := newFixture(t)
	p := f.registerUnverified(t, "cooldown@example.com")

	var last int64
	for i := 0; i < 4; i++ {
		err := f.verification.SendVerification(f.ctx, p.ID)
		var cd *common.CooldownError
		require.ErrorAs(t, err, &cd)
		assert.ErrorIs(t, err, common.ErrCooldown)

		secs := cd.SecondsRemaining()
		assert.Positive(t, secs)
		if i > 0 {
			assert.Less(t, secs, last)
		}
		last = secs
		f.clock.Advance(1500 * time.Millisecond)
	}

	f.clock.Advance(f.cfg.VerificationCooldown)
	assert.NoError(t, f.verification.SendVerification(f.ctx, p.ID))
	assert.Equal(t, 2, f.mail.Count(p.Email, notify.KindAccountVerification))
}

func TestOneTimeTokens_CooldownOnlyForAccountVerification(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "nocooldown@example.com")

	_, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)
	_, err = f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	assert.NoError(t, err)
}

func TestOneTimeTokens_AccountVerificationMismatch(t *testing.T) {
	f := newFixture(t)
	p := f.registerUnverified(t, "before@example.com")
	token := f.lastToken(t, p.Email, notify.KindAccountVerification)

	p.Email = "after@example.com"
	f.update(t, p)

	_, err := f.verification.Verify(f.ctx, token)
	assert.ErrorIs(t, err, common.ErrTokenMismatch)
	assert.False(t, f.principal(t, p.ID).EmailVerified)
}

func TestOneTimeTokens_FailedEffectLeavesTokenUnused(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "rollback@example.com")
	token, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = f.tokens.Consume(f.ctx, models.TokenPasswordReset, token,
		func(_ context.Context, _ dbx.DBTX, p *models.Principal, _ *models.OneTimeToken) error {
			p.DisplayName = "changed"
			return boom
		})
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.Equal(t, "Test", f.principal(t, p.ID).DisplayName)

	_, err = f.tokens.Consume(f.ctx, models.TokenPasswordReset, token, nil)
	assert.NoError(t, err)
}

func TestOneTimeTokens_PurgeExpired(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "purge@example.com")
	before := f.repos.TokenCount()

	_, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.repos.TokenCount())

	f.clock.Advance(f.cfg.VerificationTTL)
	n, err := f.tokens.PurgeExpired(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(before+1), n)
	assert.Zero(t, f.repos.TokenCount())
}

func TestOneTimeTokens_InitiatePurgesExpired(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "opportunistic@example.com")
	require.Equal(t, 1, f.repos.TokenCount())

	f.clock.Advance(f.cfg.VerificationTTL)
	_, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	require.NoError(t, err)
	assert.Equal(t, 1, f.repos.TokenCount())
}

func TestOneTimeTokens_ShortTTLStillRateLimited(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.ResetTTL = 10 * time.Minute })
	p := f.registerVerified(t, "shortttl@example.com")

	for i := 0; i < f.cfg.ResetMax; i++ {
		_, err := f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
		require.NoError(t, err)
		f.clock.Advance(11 * time.Minute)
	}
	_, err := f.tokens.PurgeExpired(f.ctx, f.clock.Now())
	require.NoError(t, err)

	_, err = f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	assert.ErrorIs(t, err, common.ErrRateLimited, "expired tokens still count inside the window")

	f.clock.Advance(f.cfg.ResetWindow)
	_, err = f.tokens.Initiate(f.ctx, p.ID, models.TokenPasswordReset, p.Email)
	assert.NoError(t, err)
}

func TestRetention(t *testing.T) {
	p := map[models.TokenType]TokenPolicy{
		models.TokenPasswordReset:       {TTL: 10 * time.Minute, Window: time.Hour},
		models.TokenAccountVerification: {TTL: 24 * time.Hour, Window: time.Hour},
	}
	assert.Equal(t, 50*time.Minute, retention(p))
	assert.Zero(t, retention(PoliciesFromConfig(func() *config.Config {
		c := &config.Config{}
		c.LoadDefaults()
		return c
	}())))
}
