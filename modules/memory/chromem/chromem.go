// Package chromem implements a memory module backed by chromem-go, an
// embedded pure Go vector database, optionally persisted to disk.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

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

// Module registers a chromem-backed memory.Store as the "memory.store"
// service.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.chromem",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("chromem: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	if m.config.Dimensions == 0 {
		if emb, ok := core.ServiceAs[memory.Embedder](ctx, "memory.embedder"); ok {
			m.config.Dimensions = emb.Dimensions()
		}
	}
	if err := m.config.validate(); err != nil {
		return err
	}

	db := chromem.NewDB()
	if m.config.Path != "" {
		if !filepath.IsAbs(m.config.Path) {
			m.config.Path = filepath.Join(ctx.DataDir, m.config.Path)
		}
		var err error
		db, err = chromem.NewPersistentDB(m.config.Path, m.config.Compress)
		if err != nil {
			return fmt.Errorf("chromem: open %s: %w", m.config.Path, err)
		}
	}

	m.store = New(db, m.config.Dimensions)
	ctx.RegisterService("memory.store", m.store)

	m.logger.Info("chromem memory module provisioned",
		"path", m.config.Path,
		"persistent", m.config.Path != "",
		"dimensions", m.config.Dimensions,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Health implements core.HealthChecker. A persistent database needs its
// directory to stay reachable.
func (m *Module) Health(_ context.Context) error {
	if m.config.Path == "" {
		return nil
	}
	if _, err := os.Stat(m.config.Path); err != nil {
		return fmt.Errorf("chromem: %w", err)
	}
	return nil
}

// Stop implements core.Stopper. Persistent databases write through on every
// add, so there is nothing to flush.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("chromem memory module stopping")
	return nil
}

// Store returns the Store implementation.
func (m *Module) Store() *Store {
	return m.store
}
