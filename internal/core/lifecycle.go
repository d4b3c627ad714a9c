package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Lifecycle hooks, in call order:
//
//	New → Configure → Provision → Validate → Start → (Reload)* → Stop
//
// A module implements only the hooks it needs.

// Configurable receives the module's raw YAML section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults, opens resources and registers or looks up
// shared services. Stores read the embedder service here, which is why
// embedders are loaded first.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks a provisioned module. It must not have side effects.
type Validator interface {
	Validate() error
}

// Starter begins background work such as listeners.
type Starter interface {
	Start() error
}

// Stopper releases resources. Modules stop in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader applies a new configuration without a restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}

// HealthChecker reports whether a running module can serve requests.
type HealthChecker interface {
	Health(ctx context.Context) error
}
