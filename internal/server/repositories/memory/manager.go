// Package memory is an in-process repository backend. It backs the
// "memory" storage mode and deterministic service tests.
//
// A single mutex guards all state. InTx holds it for the whole unit of work
// and restores a snapshot of every table if the work fails, which gives the
// same all-or-nothing behavior as a database transaction.
//
// The store lock also serializes transactions of different principals, which
// the Postgres backend runs concurrently under per-row locks. The memory
// backend is meant for development and tests, not for production traffic.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"sync"

	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/repositories/onetimetokens"
	"github.com/dascribs/authcore/internal/server/repositories/principals"
	"github.com/dascribs/authcore/internal/server/repositories/sessions"
)

var errNotSQL = errors.New("memory: handle does not execute SQL")

type Manager struct {
	mu         sync.Mutex
	principals map[string]models.Principal
	sessions   map[string]models.Session
	tokens     map[string]models.OneTimeToken
}

// NewManager constructs an empty in-memory Manager.
func NewManager() *Manager {
	return &Manager{
		principals: map[string]models.Principal{},
		sessions:   map[string]models.Session{},
		tokens:     map[string]models.OneTimeToken{},
	}
}

// handle satisfies dbx.DBTX so memory repositories fit the manager contract.
// It records whether the caller already holds the store lock.
type handle struct {
	m      *Manager
	locked bool
}

func (h *handle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNotSQL
}

func (h *handle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNotSQL
}

func (h *handle) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func (h *handle) run(fn func()) {
	if !h.locked {
		h.m.mu.Lock()
		defer h.m.mu.Unlock()
	}
	fn()
}

func (m *Manager) handleFor(db dbx.DBTX) *handle {
	if h, ok := db.(*handle); ok && h.m == m {
		return h
	}
	return &handle{m: m}
}

func (m *Manager) Conn() dbx.DBTX { return &handle{m: m} }

func (m *Manager) InTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		}
		if err != nil {
			m.restore(snap)
		}
	}()

	return fn(ctx, &handle{m: m, locked: true})
}

func (m *Manager) RunMigrations(context.Context) error { return nil }

func (m *Manager) Principals(db dbx.DBTX) principals.Repository {
	return &principalRepo{h: m.handleFor(db)}
}

func (m *Manager) Sessions(db dbx.DBTX) sessions.Repository {
	return &sessionRepo{h: m.handleFor(db)}
}

func (m *Manager) OneTimeTokens(db dbx.DBTX) onetimetokens.Repository {
	return &tokenRepo{h: m.handleFor(db)}
}

// TokenCount returns the number of stored one-time tokens of any state.
func (m *Manager) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// SessionCount returns the number of stored sessions, expired ones included.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type snapshot struct {
	principals map[string]models.Principal
	sessions   map[string]models.Session
	tokens     map[string]models.OneTimeToken
}

func (m *Manager) snapshot() snapshot {
	return snapshot{
		principals: maps.Clone(m.principals),
		sessions:   maps.Clone(m.sessions),
		tokens:     maps.Clone(m.tokens),
	}
}

func (m *Manager) restore(s snapshot) {
	m.principals = s.principals
	m.sessions = s.sessions
	m.tokens = s.tokens
}
