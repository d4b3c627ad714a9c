// Package core provides the module system foundation for mnemo.
package core

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Stage names a step of module loading.
type Stage string

// Loading stages, in order.
const (
	StageLookup    Stage = "lookup"
	StageConfigure Stage = "configure"
	StageProvision Stage = "provision"
	StageValidate  Stage = "validate"
)

// LoadError reports the module and the stage at which loading stopped.
type LoadError struct {
	Module string
	Stage  Stage
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("module %s: %s: %v", e.Module, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AppContext is what a module sees of the application: a logger tagged with
// the module id, the data and workspace directories, the raw module
// configurations and the shared service registry.
type AppContext struct {
	Logger    *slog.Logger
	DataDir   string
	Workspace string

	root     *slog.Logger
	sections map[string]yaml.Node
	services *serviceRegistry
}

// NewAppContext returns a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir, workspace string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:    logger,
		DataDir:   dataDir,
		Workspace: workspace,
		root:      logger,
		services:  newServiceRegistry(),
	}
}

// WithModuleConfigs returns a copy carrying sections, keyed by module id.
// Services stay shared with ctx.
func (ctx *AppContext) WithModuleConfigs(sections map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.sections = sections
	return &cp
}

// ModuleConfig returns the raw section of module id.
func (ctx *AppContext) ModuleConfig(id string) (yaml.Node, bool) {
	node, ok := ctx.sections[id]
	return node, ok
}

// ForModule derives the context handed to module id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// LoadModule builds module id and takes it through Configure, Provision
// and Validate, skipping the steps it does not implement. Configure only
// runs when a section exists for id. Failures are *LoadError.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, &LoadError{Module: id, Stage: StageLookup, Err: fmt.Errorf("not compiled in")}
	}
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, found := ctx.sections[id]; found {
			if err := c.Configure(&node); err != nil {
				return nil, &LoadError{Module: id, Stage: StageConfigure, Err: err}
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, &LoadError{Module: id, Stage: StageProvision, Err: err}
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &LoadError{Module: id, Stage: StageValidate, Err: err}
		}
	}
	return mod, nil
}
