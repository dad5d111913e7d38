package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/models"
)

type sessionRepo struct {
	h *handle
}

func (r *sessionRepo) Create(_ context.Context, s *models.Session) error {
	var err error
	r.h.run(func() {
		for _, existing := range r.h.m.sessions {
			if existing.Token == s.Token {
				err = common.ErrorAlreadyExists
				return
			}
		}
		r.h.m.sessions[s.ID] = *s
	})
	return err
}

func (r *sessionRepo) GetByToken(_ context.Context, token string) (*models.Session, error) {
	var found *models.Session
	r.h.run(func() {
		for _, s := range r.h.m.sessions {
			if s.Token == token {
				found = &s
				return
			}
		}
	})
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

func (r *sessionRepo) Touch(_ context.Context, id string, at time.Time) error {
	r.h.run(func() {
		if s, ok := r.h.m.sessions[id]; ok {
			s.LastActivity = at
			r.h.m.sessions[id] = s
		}
	})
	return nil
}

func (r *sessionRepo) ListActive(_ context.Context, principalID string, now time.Time) ([]models.Session, error) {
	var out []models.Session
	r.h.run(func() { out = r.active(principalID, now) })
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (r *sessionRepo) CountActive(_ context.Context, principalID string, now time.Time) (int, error) {
	var n int
	r.h.run(func() { n = len(r.active(principalID, now)) })
	return n, nil
}

func (r *sessionRepo) DeleteOldestActive(_ context.Context, principalID string, now time.Time, n int) (int64, error) {
	var deleted int64
	r.h.run(func() {
		act := r.active(principalID, now)
		sort.Slice(act, func(i, j int) bool { return newer(act[j], act[i]) })
		for i := 0; i < n && i < len(act); i++ {
			delete(r.h.m.sessions, act[i].ID)
			deleted++
		}
	})
	return deleted, nil
}

func (r *sessionRepo) DeleteByID(_ context.Context, id string) (int64, error) {
	return r.deleteWhere(func(s models.Session) bool { return s.ID == id }), nil
}

func (r *sessionRepo) DeleteByToken(_ context.Context, token string) (int64, error) {
	return r.deleteWhere(func(s models.Session) bool { return s.Token == token }), nil
}

func (r *sessionRepo) DeleteForPrincipal(_ context.Context, principalID, id string) (int64, error) {
	return r.deleteWhere(func(s models.Session) bool { return s.ID == id && s.PrincipalID == principalID }), nil
}

func (r *sessionRepo) DeleteAllForPrincipal(_ context.Context, principalID string) (int64, error) {
	return r.deleteWhere(func(s models.Session) bool { return s.PrincipalID == principalID }), nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(s models.Session) bool { return !s.Valid(now) }), nil
}

func (r *sessionRepo) deleteWhere(match func(models.Session) bool) int64 {
	var n int64
	r.h.run(func() {
		for id, s := range r.h.m.sessions {
			if match(s) {
				delete(r.h.m.sessions, id)
				n++
			}
		}
	})
	return n
}

// active must be called with the store lock held.
func (r *sessionRepo) active(principalID string, now time.Time) []models.Session {
	var out []models.Session
	for _, s := range r.h.m.sessions {
		if s.PrincipalID == principalID && s.Valid(now) {
			out = append(out, s)
		}
	}
	return out
}

// newer orders by last activity, then creation time, most recent first.
func newer(a, b models.Session) bool {
	if !a.LastActivity.Equal(b.LastActivity) {
		return a.LastActivity.After(b.LastActivity)
	}
	return a.CreatedAt.After(b.CreatedAt)
}
