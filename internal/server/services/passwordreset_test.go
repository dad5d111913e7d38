package services

import (
	"errors"
	"testing"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newPassword = "brand-new-pass-2"

func TestPasswordReset_UnknownEmailLooksLikeSuccess(t *testing.T) {
	f := newFixture(t)
	known := f.registerVerified(t, "known@example.com")
	tokens, msgs := f.repos.TokenCount(), len(f.mail.Messages())

	errUnknown := f.reset.RequestPasswordReset(f.ctx, "nobody@example.com")
	assert.Equal(t, tokens, f.repos.TokenCount(), "no token row for an unknown address")
	assert.Len(t, f.mail.Messages(), msgs)

	errKnown := f.reset.RequestPasswordReset(f.ctx, known.Email)
	assert.Equal(t, tokens+1, f.repos.TokenCount())

	assert.NoError(t, errUnknown)
	assert.Equal(t, errKnown, errUnknown)
}

func TestPasswordReset_EndsEverySession(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "reset@example.com")
	a := f.login(t, p.Email, testPassword)
	b := f.login(t, p.Email, testPassword)

	require.NoError(t, f.reset.RequestPasswordReset(f.ctx, p.Email))
	token := f.lastToken(t, p.Email, notify.KindPasswordReset)

	ok, err := f.reset.ValidateResetToken(f.ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.reset.ResetPassword(f.ctx, token, newPassword))

	for _, s := range []*LoginResult{a, b} {
		_, err := f.sessions.Validate(f.ctx, s.Session.Token)
		assert.ErrorIs(t, err, common.ErrSessionNotFound)
	}

	_, err = f.auth.Login(f.ctx, LoginInput{Email: p.Email, Password: testPassword})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	f.login(t, p.Email, newPassword)

	ok, err = f.reset.ValidateResetToken(f.ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, f.reset.ResetPassword(f.ctx, token, "another-pass-3"), common.ErrTokenInvalidOrExpired)

	_, sent := f.mail.Last(p.Email, notify.KindPasswordChanged)
	assert.True(t, sent)
}

func TestPasswordReset_Rejections(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "reject@example.com")
	require.NoError(t, f.reset.RequestPasswordReset(f.ctx, p.Email))
	token := f.lastToken(t, p.Email, notify.KindPasswordReset)

	assert.ErrorIs(t, f.reset.ResetPassword(f.ctx, token, "short1"), common.ErrWeakPassword)
	assert.ErrorIs(t, f.reset.ResetPassword(f.ctx, token, "onlyletters"), common.ErrWeakPassword)
	assert.ErrorIs(t, f.reset.ResetPassword(f.ctx, token, testPassword), common.ErrPasswordReuse)
	assert.ErrorIs(t, f.reset.ResetPassword(f.ctx, "bogus", newPassword), common.ErrTokenNotFound)

	assert.NoError(t, f.reset.ResetPassword(f.ctx, token, newPassword), "rejected attempts leave the token usable")
}

func TestPasswordReset_RateLimitIsSilent(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "spam@example.com")

	for i := 0; i < f.cfg.ResetMax+2; i++ {
		assert.NoError(t, f.reset.RequestPasswordReset(f.ctx, p.Email))
	}
	assert.Equal(t, f.cfg.ResetMax, f.mail.Count(p.Email, notify.KindPasswordReset))
}

func TestPasswordReset_DeliveryFailureKeepsToken(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "undelivered@example.com")
	before := f.repos.TokenCount()

	f.mail.Err = errors.New("relay refused")
	assert.NoError(t, f.reset.RequestPasswordReset(f.ctx, p.Email))
	assert.Equal(t, before+1, f.repos.TokenCount())

	f.mail.Err = nil
	require.NoError(t, f.reset.RequestPasswordReset(f.ctx, p.Email))
	require.NoError(t, f.reset.ResetPassword(f.ctx, f.lastToken(t, p.Email, notify.KindPasswordReset), newPassword))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "change@example.com")
	s := f.login(t, p.Email, testPassword)

	assert.ErrorIs(t, f.reset.ChangePassword(f.ctx, p.ID, "wrong-pass-9", newPassword), common.ErrInvalidCredentials)
	assert.ErrorIs(t, f.reset.ChangePassword(f.ctx, p.ID, testPassword, testPassword), common.ErrPasswordReuse)
	assert.ErrorIs(t, f.reset.ChangePassword(f.ctx, p.ID, testPassword, "weak"), common.ErrWeakPassword)

	_, err := f.sessions.Validate(f.ctx, s.Session.Token)
	require.NoError(t, err, "failed attempts keep sessions")

	require.NoError(t, f.reset.ChangePassword(f.ctx, p.ID, testPassword, newPassword))
	_, err = f.sessions.Validate(f.ctx, s.Session.Token)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)

	f.login(t, p.Email, newPassword)
	assert.Equal(t, 1, f.mail.Count(p.Email, notify.KindPasswordChanged))
}
