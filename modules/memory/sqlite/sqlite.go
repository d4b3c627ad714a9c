// Package sqlite implements a persistent memory module backed by SQLite.
// It provides a memory.Store holding records and their vectors, and a
// memory.HistoryStore for the recent-dialogue window. It uses
// modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable  = (*Module)(nil)
	_ core.Provisioner   = (*Module)(nil)
	_ core.Validator     = (*Module)(nil)
	_ core.Stopper       = (*Module)(nil)
	_ core.HealthChecker = (*Module)(nil)
)

// Module registers the SQLite store and history as services.
type Module struct {
	config  Config
	db      *sql.DB
	logger  *slog.Logger
	history *HistoryStore
	store   *RecordStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}
	if m.config.Dimensions == 0 {
		if emb, ok := core.ServiceAs[memory.Embedder](ctx, "memory.embedder"); ok {
			m.config.Dimensions = emb.Dimensions()
		}
	}
	if err := m.config.validate(); err != nil {
		return err
	}

	db, err := openDB(context.Background(), m.config)
	if err != nil {
		return err
	}

	m.db = db
	m.history = &HistoryStore{db: db}
	m.store = &RecordStore{db: db, dim: m.config.Dimensions}

	ctx.RegisterService("memory.history", m.history)
	ctx.RegisterService("memory.store", m.store)

	m.logger.Info("sqlite memory module provisioned",
		"path", m.config.Path,
		"journal", m.config.Journal,
		"dimensions", m.config.Dimensions,
	)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}

	ctx := context.Background()
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT count(*) FROM record_vectors").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: schema not available: %w", err)
	}

	return nil
}

// Health implements core.HealthChecker.
func (m *Module) Health(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite memory module stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// History returns the HistoryStore implementation.
func (m *Module) History() memory.HistoryStore {
	return m.history
}

// Store returns the Store implementation.
func (m *Module) Store() *RecordStore {
	return m.store
}
