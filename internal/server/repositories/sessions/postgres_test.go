package sessions

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "principal_id", "token", "client_ip", "user_agent", "expires_at", "last_activity", "created_at"}

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
	s := &models.Session{ID: "s1", PrincipalID: "p1", Token: "tok", ClientIP: "10.0.0.1", UserAgent: "curl",
		ExpiresAt: now.Add(time.Hour), LastActivity: now, CreatedAt: now}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+sessions\b.*VALUES\s*\(\$1,.*\$8\)$`).
		WithArgs("s1", "p1", "tok", "10.0.0.1", "curl", s.ExpiresAt, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+sessions\b`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestGetByToken(t *testing.T) {
	q := `(?s)^SELECT\s+id,.*FROM\s+sessions\s+WHERE\s+token\s*=\s*\$1$`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		now := time.Now().UTC()
		mock.ExpectQuery(q).WithArgs("tok").WillReturnRows(
			sqlmock.NewRows(columns).AddRow("s1", "p1", "tok", "ip", "ua", now.Add(time.Hour), now, now))

		got, err := repo.GetByToken(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.ID)
		assert.Equal(t, "p1", got.PrincipalID)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByToken(context.Background(), "nope")
		require.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestListActive_OrdersByActivity(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*WHERE\s+principal_id\s*=\s*\$1\s+AND\s+expires_at\s*>\s*\$2\s+ORDER\s+BY\s+last_activity\s+DESC$`).
		WithArgs("p1", now).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s2", "p1", "t2", "", "", now.Add(time.Hour), now, now).
			AddRow("s1", "p1", "t1", "", "", now.Add(time.Hour), now.Add(-time.Minute), now))

	got, err := repo.ListActive(context.Background(), "p1", now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)
}

func TestCountActive(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+sessions\s+WHERE\s+principal_id\s*=\s*\$1\s+AND\s+expires_at\s*>\s*\$2$`).
		WithArgs("p1", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountActive(context.Background(), "p1", now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDeleteOldestActive(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+sessions\s+WHERE\s+id\s+IN\s+\(.*ORDER\s+BY\s+last_activity\s+ASC.*LIMIT\s+\$3\)$`).
		WithArgs("p1", now, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteOldestActive(context.Background(), "p1", now, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeleteOldestActive(context.Background(), "p1", now, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletes(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name  string
		query string
		args  []any
		call  func(r *PostgresRepository) (int64, error)
	}{
		{"by id", `^DELETE\s+FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1$`, []any{"s1"},
			func(r *PostgresRepository) (int64, error) { return r.DeleteByID(context.Background(), "s1") }},
		{"by token", `^DELETE\s+FROM\s+sessions\s+WHERE\s+token\s*=\s*\$1$`, []any{"tok"},
			func(r *PostgresRepository) (int64, error) { return r.DeleteByToken(context.Background(), "tok") }},
		{"for principal", `^DELETE\s+FROM\s+sessions\s+WHERE\s+principal_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`, []any{"p1", "s1"},
			func(r *PostgresRepository) (int64, error) { return r.DeleteForPrincipal(context.Background(), "p1", "s1") }},
		{"all for principal", `^DELETE\s+FROM\s+sessions\s+WHERE\s+principal_id\s*=\s*\$1$`, []any{"p1"},
			func(r *PostgresRepository) (int64, error) { return r.DeleteAllForPrincipal(context.Background(), "p1") }},
		{"expired", `^DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at\s*<=\s*\$1$`, []any{now},
			func(r *PostgresRepository) (int64, error) { return r.DeleteExpired(context.Background(), now) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			args := make([]driver.Value, 0, len(tt.args))
			for _, a := range tt.args {
				args = append(args, eqArg{a})
			}
			mock.ExpectExec(tt.query).WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 3))

			n, err := tt.call(repo)
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDelete_Idempotent(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`^DELETE\s+FROM\s+sessions\s+WHERE\s+token`).WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.DeleteByToken(context.Background(), "gone")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTouch_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`^UPDATE\s+sessions\s+SET\s+last_activity`).WillReturnError(errors.New("boom"))

	err := repo.Touch(context.Background(), "s1", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

// eqArg matches a driver value by equality, comparing times with Equal.
type eqArg struct{ want any }

func (a eqArg) Match(v driver.Value) bool {
	if wt, ok := a.want.(time.Time); ok {
		gt, ok := v.(time.Time)
		return ok && wt.Equal(gt)
	}
	return v == a.want
}
