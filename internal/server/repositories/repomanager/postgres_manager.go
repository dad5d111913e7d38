package repomanager

import (
	"context"
	"database/sql"

	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/migrations"
	"github.com/dascribs/authcore/internal/server/repositories/onetimetokens"
	"github.com/dascribs/authcore/internal/server/repositories/principals"
	"github.com/dascribs/authcore/internal/server/repositories/sessions"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories.
//
// Transactions run at READ COMMITTED; flows that must be linearized per
// principal lock the principal row with SELECT ... FOR UPDATE.
type PostgresRepositoryManager struct {
	*dbx.SQLRunner
	db *sql.DB
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (*PostgresRepositoryManager, error) {
	return &PostgresRepositoryManager{
		SQLRunner: dbx.NewSQLRunner(db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}),
		db:        db,
	}, nil
}

func (m *PostgresRepositoryManager) Principals(db dbx.DBTX) principals.Repository {
	return principals.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) OneTimeTokens(db dbx.DBTX) onetimetokens.Repository {
	return onetimetokens.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded goose migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, ".")
}
