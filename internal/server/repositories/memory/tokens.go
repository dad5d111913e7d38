package memory

import (
	"context"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/models"
)

type tokenRepo struct {
	h *handle
}

func (r *tokenRepo) Create(_ context.Context, t *models.OneTimeToken) error {
	var err error
	r.h.run(func() {
		for _, existing := range r.h.m.tokens {
			if existing.Token == t.Token {
				err = common.ErrorAlreadyExists
				return
			}
		}
		r.h.m.tokens[t.ID] = *t
	})
	return err
}

func (r *tokenRepo) GetByToken(_ context.Context, token string) (*models.OneTimeToken, error) {
	var found *models.OneTimeToken
	r.h.run(func() {
		for _, t := range r.h.m.tokens {
			if t.Token == token {
				found = &t
				return
			}
		}
	})
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

func (r *tokenRepo) GetByTokenForUpdate(ctx context.Context, token string) (*models.OneTimeToken, error) {
	return r.GetByToken(ctx, token)
}

func (r *tokenRepo) MarkUsed(_ context.Context, id string) error {
	var err error
	r.h.run(func() {
		t, ok := r.h.m.tokens[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		t.Used = true
		r.h.m.tokens[id] = t
	})
	return err
}

func (r *tokenRepo) InvalidatePending(_ context.Context, principalID string, typ models.TokenType) (int64, error) {
	var n int64
	r.h.run(func() {
		for id, t := range r.h.m.tokens {
			if t.PrincipalID == principalID && t.Type == typ && !t.Used {
				t.Used = true
				r.h.m.tokens[id] = t
				n++
			}
		}
	})
	return n, nil
}

func (r *tokenRepo) CountSince(_ context.Context, principalID string, typ models.TokenType, since time.Time) (int, error) {
	var n int
	r.h.run(func() {
		for _, t := range r.h.m.tokens {
			if t.PrincipalID == principalID && t.Type == typ && !t.CreatedAt.Before(since) {
				n++
			}
		}
	})
	return n, nil
}

func (r *tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	r.h.run(func() {
		for id, t := range r.h.m.tokens {
			if !now.Before(t.ExpiresAt) {
				delete(r.h.m.tokens, id)
				n++
			}
		}
	})
	return n, nil
}
