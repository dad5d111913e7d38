package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/google/uuid"
)

// SessionService manages server-side sessions and enforces the per-principal
// session cap by evicting the least recently active sessions.
type SessionService struct {
	Deps
	timeout time.Duration
	max     int
}

// NewSessionService constructs a SessionService using the session timeout
// and per-principal cap from d.Config.
func NewSessionService(d Deps) *SessionService {
	return &SessionService{
		Deps:    d.withDefaults("sessions"),
		timeout: d.Config.SessionTimeout,
		max:     d.Config.MaxSessionsPerUser,
	}
}

// Create opens a session for principalID. If the principal already holds the
// maximum number of active sessions, the least recently active ones are
// removed first, so the login never fails because of the cap.
func (s *SessionService) Create(ctx context.Context, principalID, clientIP, userAgent string) (*models.Session, error) {
	var sess *models.Session
	err := s.Repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.Repos.Principals(tx).GetByIDForUpdate(ctx, principalID); err != nil {
			return err
		}
		var err error
		sess, err = s.create(ctx, tx, principalID, clientIP, userAgent)
		return err
	})
	return sess, result(ctx, s.Log, "create session", err)
}

// create runs inside a transaction that already locked the principal row.
func (s *SessionService) create(ctx context.Context, tx dbx.DBTX, principalID, clientIP, userAgent string) (*models.Session, error) {
	repo := s.Repos.Sessions(tx)
	now := s.Clock.Now()

	active, err := repo.CountActive(ctx, principalID, now)
	if err != nil {
		return nil, err
	}
	if active >= s.max {
		evicted, err := repo.DeleteOldestActive(ctx, principalID, now, active-s.max+1)
		if err != nil {
			return nil, err
		}
		s.Metrics.SessionsEvicted(evicted)
		s.Log.Info(ctx, "sessions evicted", "principal_id", principalID, "count", evicted)
	}

	token, err := s.Tokens.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	sess := &models.Session{
		ID:           uuid.NewString(),
		PrincipalID:  principalID,
		Token:        token,
		ClientIP:     clientIP,
		UserAgent:    userAgent,
		ExpiresAt:    now.Add(s.timeout),
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.Metrics.SessionCreated()
	s.Log.Debug(ctx, "session created", "principal_id", principalID, "token", common.TokenPrefix(token))
	return sess, nil
}

// FindByToken returns the stored session as-is, expired or not.
// Returns common.ErrSessionNotFound when absent.
func (s *SessionService) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	sess, err := s.Repos.Sessions(s.Repos.Conn()).GetByToken(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrSessionNotFound
	}
	return sess, result(ctx, s.Log, "find session", err)
}

// Validate returns the live session for token and records the activity.
// Meeting an expired session triggers a sweep of every expired session,
// this one included; the error then matches both common.ErrSessionNotFound
// and common.ErrSessionExpired.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.Session, error) {
	repo := s.Repos.Sessions(s.Repos.Conn())
	now := s.Clock.Now()

	sess, err := repo.GetByToken(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrSessionNotFound
	}
	if err != nil {
		return nil, result(ctx, s.Log, "validate session", err)
	}

	if !sess.Valid(now) {
		if _, err := s.SweepExpired(ctx, now); err != nil {
			return nil, err
		}
		s.Metrics.SessionExpired()
		return nil, fmt.Errorf("%w: %w", common.ErrSessionNotFound, common.ErrSessionExpired)
	}

	if err := repo.Touch(ctx, sess.ID, now); err != nil {
		return nil, result(ctx, s.Log, "touch session", err)
	}
	sess.LastActivity = now
	return sess, nil
}

// Terminate deletes the session holding token. Unknown tokens are ignored.
func (s *SessionService) Terminate(ctx context.Context, token string) error {
	_, err := s.Repos.Sessions(s.Repos.Conn()).DeleteByToken(ctx, token)
	return result(ctx, s.Log, "terminate session", err)
}

// TerminateAll deletes every session of principalID and reports how many were removed.
func (s *SessionService) TerminateAll(ctx context.Context, principalID string) (int64, error) {
	n, err := s.Repos.Sessions(s.Repos.Conn()).DeleteAllForPrincipal(ctx, principalID)
	if err != nil {
		return 0, result(ctx, s.Log, "terminate all sessions", err)
	}
	s.Log.Info(ctx, "all sessions terminated", "principal_id", principalID, "count", n)
	return n, nil
}

// TerminateByID deletes one of principalID's own sessions.
func (s *SessionService) TerminateByID(ctx context.Context, principalID, sessionID string) error {
	n, err := s.Repos.Sessions(s.Repos.Conn()).DeleteForPrincipal(ctx, principalID, sessionID)
	if err != nil {
		return result(ctx, s.Log, "terminate session by id", err)
	}
	if n == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

// ListActive returns the principal's live sessions, most recently active first.
func (s *SessionService) ListActive(ctx context.Context, principalID string) ([]models.Session, error) {
	list, err := s.Repos.Sessions(s.Repos.Conn()).ListActive(ctx, principalID, s.Clock.Now())
	return list, result(ctx, s.Log, "list sessions", err)
}

func (s *SessionService) CountActive(ctx context.Context, principalID string) (int, error) {
	n, err := s.Repos.Sessions(s.Repos.Conn()).CountActive(ctx, principalID, s.Clock.Now())
	return n, result(ctx, s.Log, "count sessions", err)
}

// SweepExpired bulk-deletes sessions that expired at or before now.
func (s *SessionService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.Repos.Sessions(s.Repos.Conn()).DeleteExpired(ctx, now)
	if err != nil {
		return 0, result(ctx, s.Log, "sweep sessions", err)
	}
	s.Metrics.SweepRemoved("sessions", n)
	return n, nil
}
