package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/flemzord/mnemo/internal/config"
	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/reload"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/telemetry"
)

// credentialEnv lists environment variables whose values are secrets and
// must never reach the logs.
var credentialEnv = []string{"OPENAI_API_KEY", "MNEMO_API_TOKEN", "MNEMO_BASIC_PASS"}

// Params configures how a Runtime is built.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// Workspace overrides the default working directory.
	Workspace string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// SkipModules lists configured module IDs that are not loaded, such
	// as the HTTP gateway when serving MCP over stdio.
	SkipModules []string

	// SkipMaintenance leaves the maintenance scheduler out, for short-lived
	// commands.
	SkipMaintenance bool
}

// Runtime is a configured application: modules loaded and provisioned,
// engine wired, nothing started yet.
type Runtime struct {
	App        *core.App
	Context    *core.AppContext
	Config     *config.Config
	ConfigPath string
	Engine     *Engine
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
	Reload     *reload.Handler

	tracing *telemetry.Tracing
}

// Build loads and validates the configuration, then loads every configured
// module and wires the engine on top of their services.
func Build(ctx context.Context, params Params) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// The redactor masks every credential the store learns, including keys
	// registered by modules while provisioning.
	credStore := security.NewCredentialStore()
	credStore.LoadEnv(credentialEnv...)
	redactor := security.NewRedactor()
	redactor.Follow(credStore)

	// Memory text is masked as well as secrets: it is user data.
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	innerHandler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: params.LogLevel})
	logger := slog.New(security.NewRedactingHandler(innerHandler, redactor, security.MemoryTextKeys...))

	auditLog := logger.With("component", "audit")
	auditLogger := security.NewAuditLogger(security.AuditLoggerConfig{
		Redactor: redactor,
		OnEvent: func(e security.AuditEvent) {
			auditLog.Info("audit event", "type", string(e.Type), "remote", e.RemoteAddr, "detail", e.Detail)
		},
	})

	var limits security.RateLimitConfig
	if cfg.Security != nil {
		limits = cfg.Security.RateLimits
	}
	rateLimiter := security.NewRateLimiter(limits)

	metrics := telemetry.NewMetrics()
	tracing, err := telemetry.NewTracing(ctx, cfg.Telemetry.Tracing)
	if err != nil {
		return nil, err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	workspace := params.Workspace
	if workspace == "" {
		workspace = DefaultWorkspace()
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("app: creating data directory: %w", err)
	}

	appCtx := core.NewAppContext(logger, dataDir, workspace)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	// Register shared services for cross-module discovery.
	appCtx.RegisterService("security.credentials", credStore)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", auditLogger)
	appCtx.RegisterService("security.ratelimiter", rateLimiter)
	appCtx.RegisterService(ServiceMetrics, metrics)
	appCtx.RegisterService("config.path", cfgPath)

	rt := &Runtime{
		Context:    appCtx,
		Config:     cfg,
		ConfigPath: cfgPath,
		Logger:     logger,
		Metrics:    metrics,
		tracing:    tracing,
	}

	application := core.NewApp(appCtx)
	rt.App = application
	appCtx.RegisterService(ServiceHealth, application)
	ids := slices.DeleteFunc(config.Resolve(cfg), func(id string) bool {
		return slices.Contains(params.SkipModules, id)
	})
	if err := application.LoadModules(ids); err != nil {
		_ = tracing.Shutdown(ctx)
		return nil, err
	}

	engine, err := BuildEngine(appCtx, cfg.Engine, EngineDeps{
		Metrics: metrics,
		Tracer:  tracing.Tracer(),
		Logger:  logger,
	})
	if err != nil {
		rt.Shutdown(ctx)
		return nil, err
	}
	rt.Engine = engine
	appCtx.RegisterService(ServicePipeline, engine.Pipeline)

	if !params.SkipMaintenance {
		if err := wireMaintenance(application, engine, cfg.Maintenance, metrics, auditLogger, logger); err != nil {
			rt.Shutdown(ctx)
			return nil, err
		}
	}

	rt.Reload = reload.NewHandler(application, appCtx, logger)
	rt.Reload.OnReload(func(context.Context, *config.Config) error {
		engine.Identity.Reset()
		return nil
	})

	return rt, nil
}

// Start starts every module in order.
func (rt *Runtime) Start() error {
	return rt.App.Start()
}

// Shutdown stops the modules and releases the engine and tracing
// resources. Safe to call on a runtime that was never started.
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.App.Stop()
	var errs []error
	if rt.Engine != nil {
		errs = append(errs, rt.Engine.Close())
	}
	if rt.tracing != nil {
		errs = append(errs, rt.tracing.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		rt.Logger.Error("shutdown", "error", err)
	}
}
