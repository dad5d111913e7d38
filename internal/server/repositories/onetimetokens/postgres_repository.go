package onetimetokens

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

const selectColumns = `id, principal_id, token, target_email, token_type, expires_at, used, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a PostgresRepository over db.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.OneTimeToken) error {
	query :=
		`INSERT INTO one_time_tokens (id, principal_id, token, target_email, token_type, expires_at, used, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.PrincipalID, t.Token, t.TargetEmail, string(t.Type), t.ExpiresAt, t.Used, t.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.OneTimeToken, error) {
	query := `SELECT ` + selectColumns + ` FROM one_time_tokens WHERE token = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) GetByTokenForUpdate(ctx context.Context, token string) (*models.OneTimeToken, error) {
	query := `SELECT ` + selectColumns + ` FROM one_time_tokens WHERE token = $1 FOR UPDATE`
	return scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE one_time_tokens SET used = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) InvalidatePending(ctx context.Context, principalID string, typ models.TokenType) (int64, error) {
	query :=
		`UPDATE one_time_tokens SET used = TRUE
          WHERE principal_id = $1 AND token_type = $2 AND used = FALSE`

	res, err := r.db.ExecContext(ctx, query, principalID, string(typ))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, principalID string, typ models.TokenType, since time.Time) (int, error) {
	query :=
		`SELECT COUNT(*) FROM one_time_tokens
          WHERE principal_id = $1 AND token_type = $2 AND created_at >= $3`

	var n int
	if err := r.db.QueryRowContext(ctx, query, principalID, string(typ), since).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM one_time_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func scanOne(row *sql.Row) (*models.OneTimeToken, error) {
	var (
		t   models.OneTimeToken
		typ string
	)
	err := row.Scan(&t.ID, &t.PrincipalID, &t.Token, &t.TargetEmail, &typ, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Type = models.TokenType(typ)
	return &t, nil
}
