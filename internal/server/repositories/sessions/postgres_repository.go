package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/models"
)

const selectColumns = `id, principal_id, token, client_ip, user_agent, expires_at, last_activity, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a PostgresRepository over db.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query :=
		`INSERT INTO sessions (id, principal_id, token, client_ip, user_agent, expires_at, last_activity, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.PrincipalID, s.Token, s.ClientIP, s.UserAgent, s.ExpiresAt, s.LastActivity, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `SELECT ` + selectColumns + ` FROM sessions WHERE token = $1`

	var s models.Session
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&s.ID, &s.PrincipalID, &s.Token, &s.ClientIP, &s.UserAgent, &s.ExpiresAt, &s.LastActivity, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE id = $1`, id, at)
}

func (r *PostgresRepository) ListActive(ctx context.Context, principalID string, now time.Time) ([]models.Session, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM sessions
          WHERE principal_id = $1 AND expires_at > $2
          ORDER BY last_activity DESC`

	rows, err := r.db.QueryContext(ctx, query, principalID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.PrincipalID, &s.Token, &s.ClientIP, &s.UserAgent,
			&s.ExpiresAt, &s.LastActivity, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context, principalID string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE principal_id = $1 AND expires_at > $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, principalID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteOldestActive(ctx context.Context, principalID string, now time.Time, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	query :=
		`DELETE FROM sessions
          WHERE id IN (
                SELECT id FROM sessions
                 WHERE principal_id = $1 AND expires_at > $2
                 ORDER BY last_activity ASC, created_at ASC
                 LIMIT $3)`
	return r.execCount(ctx, query, principalID, now, n)
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM sessions WHERE id = $1`, id)
}

func (r *PostgresRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM sessions WHERE token = $1`, token)
}

func (r *PostgresRepository) DeleteForPrincipal(ctx context.Context, principalID, id string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM sessions WHERE principal_id = $1 AND id = $2`, principalID, id)
}

func (r *PostgresRepository) DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM sessions WHERE principal_id = $1`, principalID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.execCount(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
