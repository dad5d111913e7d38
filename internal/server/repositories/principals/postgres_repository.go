package principals

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

const selectColumns = `id, email, password_hash, display_name, role, active, email_verified,
       pending_email, verification_sent_at, last_login_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a PostgresRepository over db.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	query :=
		`INSERT INTO principals (id, email, password_hash, display_name, role, active, email_verified, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.PasswordHash, p.DisplayName, p.Role, p.Active, p.EmailVerified, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	query := `SELECT ` + selectColumns + ` FROM principals WHERE id = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Principal, error) {
	query := `SELECT ` + selectColumns + ` FROM principals WHERE id = $1 FOR UPDATE`
	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `SELECT ` + selectColumns + ` FROM principals WHERE email = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.Principal) error {
	query :=
		`UPDATE principals
            SET email = $2, password_hash = $3, display_name = $4, role = $5, active = $6,
                email_verified = $7, pending_email = $8, verification_sent_at = $9,
                last_login_at = $10, updated_at = $11
          WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.PasswordHash, p.DisplayName, p.Role, p.Active, p.EmailVerified,
		nullString(p.PendingEmail), nullTime(p.VerificationSentAt), nullTime(p.LastLoginAt), p.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE principals SET last_login_at = $2, updated_at = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func scanOne(row *sql.Row) (*models.Principal, error) {
	var (
		p          models.Principal
		pending    sql.NullString
		verifySent sql.NullTime
		lastLogin  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.Role, &p.Active, &p.EmailVerified,
		&pending, &verifySent, &lastLogin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	p.PendingEmail = pending.String
	if verifySent.Valid {
		t := verifySent.Time
		p.VerificationSentAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return &p, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
