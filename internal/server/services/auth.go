package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/auth"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/password"
	"github.com/dascribs/authcore/internal/server/rbac"
	"github.com/dascribs/authcore/internal/server/throttle"
	"github.com/google/uuid"
)

// timingDecoy is hashed once so unknown emails cost one Verify like real ones.
const timingDecoy = "timing-decoy-password-1"

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

type LoginInput struct {
	Email     string
	Password  string
	ClientIP  string
	UserAgent string
}

// LoginResult carries the two independent credentials of a login: the
// stateless bearer token and the revocable session.
type LoginResult struct {
	Bearer    auth.BearerToken
	Session   *models.Session
	Principal *models.Principal
}

// AuthService coordinates registration, login and logout.
type AuthService struct {
	Deps
	codec        *auth.Codec
	hasher       password.Hasher
	roles        *rbac.Registry
	limiter      throttle.Limiter
	sessions     *SessionService
	verification *EmailVerificationFlow
	decoyHash    string
}

// NewAuthService constructs an AuthService. It hashes the timing decoy once,
// so it fails only if the hasher does.
func NewAuthService(d Deps, codec *auth.Codec, h password.Hasher, roles *rbac.Registry, limiter throttle.Limiter,
	sessions *SessionService, verification *EmailVerificationFlow) (*AuthService, error) {
	decoy, err := h.Hash(timingDecoy)
	if err != nil {
		return nil, fmt.Errorf("hash decoy password: %w", err)
	}
	return &AuthService{
		Deps:         d.withDefaults("auth"),
		codec:        codec,
		hasher:       h,
		roles:        roles,
		limiter:      limiter,
		sessions:     sessions,
		verification: verification,
		decoyHash:    decoy,
	}, nil
}

// Register creates an active, unverified principal and mails it a
// verification token. A failed send does not fail the registration; the
// principal can ask for a resend.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Principal, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = rbac.DefaultRole
	}
	if !s.roles.Has(role) {
		return nil, common.ErrUnknownRole
	}
	if err := password.CheckStrength(in.Password, s.Config.MinPasswordLength); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, result(ctx, s.Log, "hash password", err)
	}

	now := s.Clock.Now()
	p, err := s.Repos.Principals(s.Repos.Conn()).Create(ctx, &models.Principal{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		return nil, common.ErrEmailTaken
	}
	if err != nil {
		return nil, result(ctx, s.Log, "register", err)
	}
	s.Log.Info(ctx, "principal registered", "principal_id", p.ID, "role", p.Role)

	if err := s.verification.SendVerification(ctx, p.ID); err != nil {
		s.Log.Warn(ctx, "initial verification not sent", "principal_id", p.ID, "error", err)
	}
	return p, nil
}

// Login checks credentials before account state, so a caller learns whether
// the account is deactivated or unverified only with the right password.
// Unknown emails and wrong passwords both yield common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := models.NormalizeEmail(in.Email)

	if err := s.limiter.Check(ctx, email); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			s.Metrics.Login("rate_limited")
			return nil, err
		}
		s.Log.Warn(ctx, "login throttle unavailable", "error", err)
	}

	p, err := s.Repos.Principals(s.Repos.Conn()).GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.Metrics.Login("error")
		return nil, result(ctx, s.Log, "login lookup", err)
	}

	hash := s.decoyHash
	if p != nil {
		hash = p.PasswordHash
	}
	ok, err := s.hasher.Verify(in.Password, hash)
	if err != nil {
		s.Log.Warn(ctx, "password verify failed", "error", err)
		ok = false
	}
	if p == nil || !ok {
		s.fail(ctx, email)
		s.Metrics.Login("invalid_credentials")
		return nil, common.ErrInvalidCredentials
	}

	if !p.Active {
		s.Metrics.Login("deactivated")
		return nil, common.ErrAccountDeactivated
	}
	if !p.EmailVerified {
		s.Metrics.Login("email_not_verified")
		return nil, common.ErrEmailNotVerified
	}

	bearer, err := s.codec.Mint(p.ID, p.Email, p.Role, s.roles.Permissions(p.Role))
	if err != nil {
		s.Metrics.Login("error")
		return nil, result(ctx, s.Log, "mint bearer token", err)
	}

	var sess *models.Session
	err = s.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.Repos.Principals(tx).GetByIDForUpdate(ctx, p.ID); err != nil {
			return err
		}
		now := s.Clock.Now()
		if err := s.Repos.Principals(tx).TouchLastLogin(ctx, p.ID, now); err != nil {
			return err
		}
		p.LastLoginAt = &now
		var err error
		sess, err = s.sessions.create(ctx, tx, p.ID, in.ClientIP, in.UserAgent)
		return err
	})
	if err != nil {
		s.Metrics.Login("error")
		return nil, result(ctx, s.Log, "login", err)
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.Log.Warn(ctx, "login throttle reset failed", "error", err)
	}
	s.Metrics.Login("success")
	s.Log.Info(ctx, "login", "principal_id", p.ID, "session", common.TokenPrefix(sess.Token), "client_ip", in.ClientIP)
	return &LoginResult{Bearer: bearer, Session: sess, Principal: p}, nil
}

func (s *AuthService) fail(ctx context.Context, email string) {
	if err := s.limiter.Fail(ctx, email); err != nil {
		s.Log.Warn(ctx, "login throttle record failed", "error", err)
	}
}

// Logout ends the session named by sessionToken. The bearer token cannot be
// revoked and simply runs out; it is only used to attribute the log entry.
func (s *AuthService) Logout(ctx context.Context, bearerToken, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	if err := s.sessions.Terminate(ctx, sessionToken); err != nil {
		return err
	}

	var principalID string
	if bearerToken != "" {
		if sub, err := s.codec.ExtractSubject(bearerToken); err == nil {
			principalID = sub.PrincipalID
		}
	}
	s.Log.Info(ctx, "logout", "principal_id", principalID, "session", common.TokenPrefix(sessionToken))
	return nil
}

// LogoutAll ends every session of principalID. Bearer tokens already issued
// stay valid until they expire.
func (s *AuthService) LogoutAll(ctx context.Context, principalID string) (int64, error) {
	return s.sessions.TerminateAll(ctx, principalID)
}

// Me returns the current state of the authenticated principal.
func (s *AuthService) Me(ctx context.Context, principalID string) (*models.Principal, error) {
	p, err := s.Repos.Principals(s.Repos.Conn()).GetByID(ctx, principalID)
	return p, result(ctx, s.Log, "me", err)
}

// Authenticate turns request credentials into an Identity. The bearer token
// is always required. When a session token is presented too, it must be live
// and belong to the bearer's subject, and its activity is recorded.
func (s *AuthService) Authenticate(ctx context.Context, bearerToken, sessionToken string) (auth.Identity, error) {
	sub, err := s.codec.Validate(bearerToken)
	if err != nil {
		return auth.Identity{}, err
	}
	id := auth.Identity{
		PrincipalID: sub.PrincipalID,
		Email:       sub.Email,
		Role:        sub.Role,
		Permissions: sub.Permissions,
	}
	if sessionToken == "" {
		return id, nil
	}

	sess, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return auth.Identity{}, err
	}
	if sess.PrincipalID != sub.PrincipalID {
		s.Log.Warn(ctx, "session presented with foreign bearer token",
			"principal_id", sub.PrincipalID, "session", common.TokenPrefix(sessionToken))
		return auth.Identity{}, common.ErrSessionNotFound
	}
	id.SessionID = sess.ID
	return id, nil
}

// SetActive switches principalID's account on or off. Deactivation ends
// every session of the principal in the same transaction; bearer tokens
// already issued stay valid until they expire, but no new login succeeds.
func (s *AuthService) SetActive(ctx context.Context, principalID string, active bool) (*models.Principal, error) {
	var (
		p          *models.Principal
		terminated int64
	)
	err := s.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		p, err = s.Repos.Principals(tx).GetByIDForUpdate(ctx, principalID)
		if err != nil {
			return err
		}
		if p.Active == active {
			return nil
		}
		p.Active = active
		p.UpdatedAt = s.Clock.Now()
		if err := s.Repos.Principals(tx).Update(ctx, p); err != nil {
			return err
		}
		if !active {
			terminated, err = s.Repos.Sessions(tx).DeleteAllForPrincipal(ctx, p.ID)
		}
		return err
	})
	if err != nil {
		return nil, result(ctx, s.Log, "set active", err)
	}
	s.Log.Info(ctx, "principal activation changed", "principal_id", p.ID, "active", active, "sessions_terminated", terminated)
	return p, nil
}

// SetActiveByEmail is SetActive for callers that only know the address.
func (s *AuthService) SetActiveByEmail(ctx context.Context, email string, active bool) (*models.Principal, error) {
	p, err := s.Repos.Principals(s.Repos.Conn()).GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, result(ctx, s.Log, "set active lookup", err)
	}
	return s.SetActive(ctx, p.ID, active)
}
