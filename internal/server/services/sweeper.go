package services

import (
	"context"
	"errors"
	"time"

	"github.com/dascribs/authcore/internal/logging"
	"github.com/dascribs/authcore/internal/timex"
)

// SweepResult counts the rows removed by one sweep.
type SweepResult struct {
	Sessions int64
	Tokens   int64
}

// Sweeper periodically removes expired sessions and one-time tokens. It runs
// alongside live requests; each delete is a single statement.
type Sweeper struct {
	sessions *SessionService
	tokens   *OneTimeTokenService
	interval time.Duration
	clock    timex.Clock
	log      logging.Logger
}

// NewSweeper constructs a Sweeper that runs every interval.
func NewSweeper(sessions *SessionService, tokens *OneTimeTokenService, interval time.Duration, clock timex.Clock, log logging.Logger) *Sweeper {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Sweeper{sessions: sessions, tokens: tokens, interval: interval, clock: clock, log: log.With("module", "sweeper")}
}

// RunOnce performs one sweep. Both tables are attempted even if one fails.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()

	var res SweepResult
	var errSessions, errTokens error
	res.Sessions, errSessions = s.sessions.SweepExpired(ctx, now)
	res.Tokens, errTokens = s.tokens.PurgeExpired(ctx, now)

	if err := errors.Join(errSessions, errTokens); err != nil {
		return res, err
	}
	s.log.Info(ctx, "sweep finished", "sessions", res.Sessions, "tokens", res.Tokens)
	return res, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error(ctx, "sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
