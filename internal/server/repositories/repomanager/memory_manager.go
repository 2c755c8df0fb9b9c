package repomanager

import (
	"context"
	"sync"

	"github.com/nickk-eng/Serialboxd/internal/dbx"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/memory"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/sessions"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/users"
)

// MemoryRepositoryManager serves repositories from a memory.Store. WithTx
// runs transactions one at a time and cannot roll back writes.
type MemoryRepositoryManager struct {
	store *memory.Store
	txMu  sync.Mutex
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{store: memory.NewStore()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, nil)
}

func (m *MemoryRepositoryManager) Conn() dbx.DBTX { return nil }

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.store.Users() }

func (m *MemoryRepositoryManager) Sessions(dbx.DBTX) sessions.Repository { return m.store.Sessions() }

func (m *MemoryRepositoryManager) Ping(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }
