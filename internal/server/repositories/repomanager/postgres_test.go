package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dascribs/authcore/internal/dbx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*PostgresRepositoryManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := NewPostgresRepositoryManager(db)
	require.NoError(t, err)
	return m, mock
}

func TestNewPostgresRepositoryManager_ImplementsInterface(t *testing.T) {
	m, _ := newManager(t)
	var _ RepositoryManager = m

	conn := m.Conn()
	assert.NotNil(t, m.Principals(conn))
	assert.NotNil(t, m.Sessions(conn))
	assert.NotNil(t, m.OneTimeTokens(conn))
}

func TestInTx_CommitsRepositoryWork(t *testing.T) {
	m, mock := newManager(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE\s+FROM\s+sessions\s+WHERE\s+principal_id`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := m.InTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		_, err := m.Sessions(tx).DeleteAllForPrincipal(ctx, "p1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	m, mock := newManager(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := m.InTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_Success(t *testing.T) {
	m, _ := newManager(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if db != m.db {
			return errors.New("unexpected db")
		}
		return nil
	}

	require.NoError(t, m.RunMigrations(context.Background()))
}

func TestRunMigrations_Error(t *testing.T) {
	m, _ := newManager(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	require.EqualError(t, m.RunMigrations(context.Background()), "boom")
}
