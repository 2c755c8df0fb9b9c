package repomanager

import (
	"context"

	"github.com/nickk-eng/Serialboxd/internal/dbx"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/sessions"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a connection or transaction
// and owns the lifetime of the underlying storage.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// WithTx runs fn inside a transaction. Repositories obtained from the tx
	// argument take part in it.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	// Conn returns the non-transactional handle.
	Conn() dbx.DBTX
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Ping(ctx context.Context) error
	Close() error
}
