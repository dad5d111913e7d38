package onetimetokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "principal_id", "token", "target_email", "token_type", "expires_at", "used", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	tok := &models.OneTimeToken{ID: "t1", PrincipalID: "p1", Token: "opaque", TargetEmail: "a@b.c",
		Type: models.TokenPasswordReset, ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+one_time_tokens\b.*VALUES\s*\(\$1,.*\$8\)$`).
		WithArgs("t1", "p1", "opaque", "a@b.c", "PASSWORD_RESET", tok.ExpiresAt, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), tok))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Collision(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+one_time_tokens\b`).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.OneTimeToken{Type: models.TokenPasswordReset})
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestGetByToken(t *testing.T) {
	q := `(?s)^SELECT\s+id,.*FROM\s+one_time_tokens\s+WHERE\s+token\s*=\s*\$1$`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		now := time.Now().UTC()
		mock.ExpectQuery(q).WithArgs("opaque").WillReturnRows(sqlmock.NewRows(columns).
			AddRow("t1", "p1", "opaque", "a@b.c", "ACCOUNT_VERIFICATION", now, true, now))

		got, err := repo.GetByToken(context.Background(), "opaque")
		require.NoError(t, err)
		assert.Equal(t, models.TokenAccountVerification, got.Type)
		assert.True(t, got.Used)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("x").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByToken(context.Background(), "x")
		require.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("x").WillReturnError(errors.New("conn reset"))

		_, err := repo.GetByToken(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
		assert.Contains(t, err.Error(), "db error: conn reset")
	})
}

func TestGetByTokenForUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)FROM\s+one_time_tokens\s+WHERE\s+token\s*=\s*\$1\s+FOR\s+UPDATE$`).
		WithArgs("opaque").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("t1", "p1", "opaque", "new@b.c", "EMAIL_CHANGE_VERIFICATION", now, false, now))

	got, err := repo.GetByTokenForUpdate(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, "new@b.c", got.TargetEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed(t *testing.T) {
	q := `^UPDATE\s+one_time_tokens\s+SET\s+used\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1$`

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(q).WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkUsed(context.Background(), "t1"))

	mock.ExpectExec(q).WithArgs("t2").WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkUsed(context.Background(), "t2"), common.ErrorNotFound)
}

func TestInvalidatePending(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^UPDATE\s+one_time_tokens\s+SET\s+used\s*=\s*TRUE\s+WHERE\s+principal_id\s*=\s*\$1\s+AND\s+token_type\s*=\s*\$2\s+AND\s+used\s*=\s*FALSE$`).
		WithArgs("p1", "PASSWORD_RESET").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.InvalidatePending(context.Background(), "p1", models.TokenPasswordReset)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestCountSince(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	since := time.Now().Add(-time.Hour).UTC()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+one_time_tokens\s+WHERE\s+principal_id\s*=\s*\$1\s+AND\s+token_type\s*=\s*\$2\s+AND\s+created_at\s*>=\s*\$3$`).
		WithArgs("p1", "ACCOUNT_VERIFICATION", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountSince(context.Background(), "p1", models.TokenAccountVerification, since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`^DELETE\s+FROM\s+one_time_tokens\s+WHERE\s+expires_at\s*<=\s*\$1$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
}
