// Package hash implements the embedder.hash module, which registers the
// deterministic feature-hashing embedder. It needs no network and suits
// offline setups and tests.
package hash

import (
	"fmt"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

const defaultDimensions = 1024

// Config holds the hash embedder configuration.
type Config struct {
	Dimensions int `yaml:"dimensions"`
}

// Module registers a memory.HashEmbedder as "memory.embedder".
type Module struct {
	config Config
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedder.hash",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("embedder.hash: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	if m.config.Dimensions == 0 {
		m.config.Dimensions = defaultDimensions
	}
	ctx.RegisterService("memory.embedder", memory.NewHashEmbedder(m.config.Dimensions))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.Dimensions < 0 {
		return fmt.Errorf("embedder.hash: dimensions must be positive, got %d", m.config.Dimensions)
	}
	return nil
}
