// Package throttle counts failed login attempts per key in fixed windows.
// Once a key has failed max times, Check rejects it until the window ends.
package throttle

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures so callers can tell them apart from a block.
var ErrUnavailable = errors.New("throttle backend unavailable")

type Limiter interface {
	// Check returns common.ErrRateLimited when key has exhausted its budget.
	Check(ctx context.Context, key string) error
	// Fail records one failed attempt for key.
	Fail(ctx context.Context, key string) error
	// Reset clears key, typically after a successful login.
	Reset(ctx context.Context, key string) error
}

// Config is shared by all implementations.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}
