package memory

import (
	"context"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/models"
)

type principalRepo struct {
	h *handle
}

func (r *principalRepo) Create(_ context.Context, p *models.Principal) (*models.Principal, error) {
	var err error
	r.h.run(func() {
		if _, ok := r.h.m.principals[p.ID]; ok || r.emailTaken(p.Email, "") {
			err = common.ErrorAlreadyExists
			return
		}
		r.h.m.principals[p.ID] = *p
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *principalRepo) GetByID(_ context.Context, id string) (*models.Principal, error) {
	var (
		p  models.Principal
		ok bool
	)
	r.h.run(func() { p, ok = r.h.m.principals[id] })
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

// GetByIDForUpdate needs no row lock: transactions already hold the store lock.
func (r *principalRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Principal, error) {
	return r.GetByID(ctx, id)
}

func (r *principalRepo) GetByEmail(_ context.Context, email string) (*models.Principal, error) {
	var found *models.Principal
	r.h.run(func() {
		for _, p := range r.h.m.principals {
			if p.Email == email {
				found = &p
				return
			}
		}
	})
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

func (r *principalRepo) Update(_ context.Context, p *models.Principal) error {
	var err error
	r.h.run(func() {
		if _, ok := r.h.m.principals[p.ID]; !ok {
			err = common.ErrorNotFound
			return
		}
		if r.emailTaken(p.Email, p.ID) {
			err = common.ErrorAlreadyExists
			return
		}
		r.h.m.principals[p.ID] = *p
	})
	return err
}

func (r *principalRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	var err error
	r.h.run(func() {
		p, ok := r.h.m.principals[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		p.LastLoginAt = &at
		p.UpdatedAt = at
		r.h.m.principals[id] = p
	})
	return err
}

// emailTaken must be called with the store lock held.
func (r *principalRepo) emailTaken(email, exceptID string) bool {
	for id, p := range r.h.m.principals {
		if id != exceptID && p.Email == email {
			return true
		}
	}
	return false
}
