package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/timex"
)

type window struct {
	count int
	ends  time.Time
}

// MemoryLimiter keeps counters in-process; used when no redis address is configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	cfg     Config
	clock   timex.Clock
	windows map[string]window
}

// NewMemoryLimiter constructs a process-local MemoryLimiter.
func NewMemoryLimiter(cfg Config, clock timex.Clock) *MemoryLimiter {
	return &MemoryLimiter{cfg: cfg, clock: clock, windows: map[string]window{}}
}

func (l *MemoryLimiter) Check(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.current(key); ok && w.count >= l.cfg.MaxAttempts {
		return common.ErrRateLimited
	}
	return nil
}

func (l *MemoryLimiter) Fail(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.current(key)
	if !ok {
		w = window{ends: l.clock.Now().Add(l.cfg.Window)}
	}
	w.count++
	l.windows[key] = w
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// current drops an elapsed window. Caller holds mu.
func (l *MemoryLimiter) current(key string) (window, bool) {
	w, ok := l.windows[key]
	if !ok {
		return window{}, false
	}
	if !l.clock.Now().Before(w.ends) {
		delete(l.windows, key)
		return window{}, false
	}
	return w, true
}
