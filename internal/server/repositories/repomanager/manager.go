// Package repomanager bundles repository constructors with the transaction
// runner and schema migrations for one storage backend.
package repomanager

import (
	"context"

	"github.com/dascribs/authcore/internal/dbx"
	"github.com/dascribs/authcore/internal/server/repositories/onetimetokens"
	"github.com/dascribs/authcore/internal/server/repositories/principals"
	"github.com/dascribs/authcore/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a handle obtained from its
// own Runner: Conn() for single statements, or the tx passed to InTx.
type RepositoryManager interface {
	dbx.Runner
	RunMigrations(ctx context.Context) error
	Principals(db dbx.DBTX) principals.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	OneTimeTokens(db dbx.DBTX) onetimetokens.Repository
}
