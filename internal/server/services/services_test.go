package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/auth"
	"github.com/dascribs/authcore/internal/server/config"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/notify"
	"github.com/dascribs/authcore/internal/server/password"
	"github.com/dascribs/authcore/internal/server/rbac"
	"github.com/dascribs/authcore/internal/server/repositories/memory"
	"github.com/dascribs/authcore/internal/server/throttle"
	"github.com/dascribs/authcore/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-1"

var fastArgon2 = password.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// fixture wires every service over the in-memory store and a manual clock.
type fixture struct {
	ctx          context.Context
	cfg          *config.Config
	clock        *timex.ManualClock
	repos        *memory.Manager
	mail         *notify.MemoryDispatcher
	codec        *auth.Codec
	sessions     *SessionService
	tokens       *OneTimeTokenService
	verification *EmailVerificationFlow
	reset        *PasswordResetFlow
	auth         *AuthService
}

func newFixture(t *testing.T, tweak ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, fn := range tweak {
		fn(cfg)
	}

	clock := timex.NewManualClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	repos := memory.NewManager()
	mail := notify.NewMemoryDispatcher()
	hasher := password.NewArgon2id(fastArgon2)
	codec := auth.NewCodec([]byte("test-secret"), time.Hour, clock)

	deps := Deps{Repos: repos, Config: cfg, Clock: clock}
	notifier := NewNotifier(mail, notify.NewLinks(cfg.FrontendURL), clock, nil, nil)

	sessions := NewSessionService(deps)
	tokens := NewOneTimeTokenService(deps)
	verification := NewEmailVerificationFlow(deps, tokens, notifier)
	reset := NewPasswordResetFlow(deps, tokens, notifier, hasher)
	limiter := throttle.NewMemoryLimiter(throttle.Config{MaxAttempts: cfg.LoginMaxAttempts, Window: cfg.LoginLockout}, clock)

	authSvc, err := NewAuthService(deps, codec, hasher, rbac.Default(), limiter, sessions, verification)
	require.NoError(t, err)

	return &fixture{
		ctx:          context.Background(),
		cfg:          cfg,
		clock:        clock,
		repos:        repos,
		mail:         mail,
		codec:        codec,
		sessions:     sessions,
		tokens:       tokens,
		verification: verification,
		reset:        reset,
		auth:         authSvc,
	}
}

// registerUnverified creates a principal whose verification mail was sent.
func (f *fixture) registerUnverified(t *testing.T, email string) *models.Principal {
	t.Helper()
	p, err := f.auth.Register(f.ctx, RegisterInput{Email: email, Password: testPassword, DisplayName: "Test"})
	require.NoError(t, err)
	return p
}

// registerVerified creates a principal and completes account verification.
func (f *fixture) registerVerified(t *testing.T, email string) *models.Principal {
	t.Helper()
	p := f.registerUnverified(t, email)
	_, err := f.verification.Verify(f.ctx, f.lastToken(t, p.Email, notify.KindAccountVerification))
	require.NoError(t, err)
	return f.principal(t, p.ID)
}

func (f *fixture) lastToken(t *testing.T, addr string, kind notify.Kind) string {
	t.Helper()
	msg, ok := f.mail.Last(addr, kind)
	require.True(t, ok, "no %s message for %s", kind, addr)
	require.NotEmpty(t, msg.Token)
	return msg.Token
}

func (f *fixture) principal(t *testing.T, id string) *models.Principal {
	t.Helper()
	p, err := f.repos.Principals(f.repos.Conn()).GetByID(f.ctx, id)
	require.NoError(t, err)
	return p
}

func (f *fixture) update(t *testing.T, p *models.Principal) {
	t.Helper()
	require.NoError(t, f.repos.Principals(f.repos.Conn()).Update(f.ctx, p))
}

func (f *fixture) login(t *testing.T, email, pw string) *LoginResult {
	t.Helper()
	res, err := f.auth.Login(f.ctx, LoginInput{Email: email, Password: pw, ClientIP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return res
}

func TestResult_PassesTaxonomyAndHidesTheRest(t *testing.T) {
	ctx := context.Background()
	log := Deps{}.withDefaults("test").Log

	assert.NoError(t, result(ctx, log, "op", nil))

	cooldown := &common.CooldownError{Remaining: time.Second}
	assert.Same(t, cooldown, result(ctx, log, "op", cooldown))
	assert.ErrorIs(t, result(ctx, log, "op", common.ErrTokenMismatch), common.ErrTokenMismatch)

	err := result(ctx, log, "op", errors.New("connection reset"))
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestNormalizeEmail(t *testing.T) {
	got, err := normalizeEmail("  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got)

	for _, bad := range []string{"", "alice", "Alice <alice@example.com>"} {
		_, err := normalizeEmail(bad)
		assert.ErrorIs(t, err, common.ErrInvalidEmail, bad)
	}
}

func TestNotifier_FailureIsSwallowed(t *testing.T) {
	mail := notify.NewMemoryDispatcher()
	mail.Err = errors.New("smtp down")
	clock := timex.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	n := NewNotifier(mail, notify.NewLinks("https://app.example"), clock, nil, nil)

	assert.NotPanics(t, func() {
		n.Send(context.Background(), "a@example.com", notify.KindPasswordReset, "A", "tok")
	})
	assert.Empty(t, mail.Messages())

	mail.Err = nil
	n.Send(context.Background(), "a@example.com", notify.KindPasswordReset, "A", "tok")
	msg, ok := mail.Last("a@example.com", notify.KindPasswordReset)
	require.True(t, ok)
	assert.Equal(t, "https://app.example/reset-password?token=tok", msg.Link)
	assert.Equal(t, clock.Now(), msg.CreatedAt)
	assert.NotEmpty(t, msg.ID)
}
