package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/mnemo/internal/affect"
	"github.com/flemzord/mnemo/internal/config"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/cron"
	"github.com/flemzord/mnemo/internal/hook"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/persona"
	"github.com/flemzord/mnemo/internal/pipeline"
	"github.com/flemzord/mnemo/internal/retrieval"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/telemetry"
	"github.com/flemzord/mnemo/internal/tier"
)

// Service names shared between modules and the runtime.
const (
	ServiceStore    = "memory.store"
	ServiceEmbedder = "memory.embedder"
	ServiceHistory  = "memory.history"
	ServicePipeline = "mnemo.pipeline"
	ServiceMetrics  = "telemetry.metrics"
	ServiceHealth   = "core.health"
)

// Engine is the wired read and write path plus the resources it owns.
type Engine struct {
	Pipeline *pipeline.Pipeline
	Store    memory.Store
	History  memory.HistoryStore

	// Identity caches per-scope identities; reloads reset it.
	Identity *tier.LoadOnce[string, string]

	// PersonaDir holds the identity and guidance files.
	PersonaDir string

	closers []func() error
}

// Close releases the engine caches and the audit hook file.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// EngineDeps are the ambient services BuildEngine wires into every
// component. All fields are optional.
type EngineDeps struct {
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// BuildEngine assembles the pipeline from the store, embedder and history
// services registered by the loaded modules. Must be called after
// LoadModules.
func BuildEngine(appCtx *core.AppContext, cfg config.EngineConfig, deps EngineDeps) (*Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = appCtx.Logger
	}

	store, ok := core.ServiceAs[memory.Store](appCtx, ServiceStore)
	if !ok {
		return nil, errors.New("app: no memory store module loaded")
	}
	embedder, ok := core.ServiceAs[memory.Embedder](appCtx, ServiceEmbedder)
	if !ok {
		return nil, errors.New("app: no embedder module loaded")
	}
	history, ok := core.ServiceAs[memory.HistoryStore](appCtx, ServiceHistory)
	if !ok {
		logger.Warn("no durable history store, recent dialogue is kept in memory")
		history = memory.NewInMemoryHistoryStore()
	}

	opts := []retrieval.Option{retrieval.WithLogger(logger), retrieval.WithMetrics(deps.Metrics)}
	asmOpts := []ctxengine.Option{ctxengine.WithLogger(logger), ctxengine.WithMetrics(deps.Metrics)}
	if deps.Tracer != nil {
		opts = append(opts, retrieval.WithTracer(deps.Tracer))
		asmOpts = append(asmOpts, ctxengine.WithTracer(deps.Tracer))
	}

	engine, err := retrieval.NewEngine(store, embedder, cfg.Retrieval, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: building retrieval engine: %w", err)
	}
	out := &Engine{Store: store, History: history}
	out.closers = append(out.closers, func() error { engine.Close(); return nil })

	assembler, err := ctxengine.NewAssembler(cfg.Assembler, asmOpts...)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("app: building assembler: %w", err)
	}

	root := cfg.PersonaDir
	if root == "" {
		root = filepath.Join(appCtx.DataDir, "personas")
	}
	out.PersonaDir = root
	dir := persona.New(root)
	out.Identity = tier.NewLoadOnce(dir.LoadIdentity)

	hooks := hook.NewPipeline()
	if cfg.AuditLog != "" {
		w, err := openAuditLog(cfg.AuditLog)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out.closers = append(out.closers, w.Close)
		hooks.Register(hook.NewAuditHook(w))
	}

	var extractor memory.FactExtractor
	if cfg.ExtractFacts {
		extractor = memory.PatternExtractor{}
	}

	scorer := affect.NewLexicon(nil)
	p, err := pipeline.New(pipeline.Config{
		Classifier:  retrieval.NewClassifier(cfg.Classifier, scorer, logger),
		Engine:      engine,
		Assembler:   assembler,
		Writer:      memory.NewWriter(store, embedder, scorer, cfg.Writer, logger),
		History:     history,
		Identity:    out.Identity,
		Guidance:    tier.NewPassThrough(dir.LoadGuidance),
		Dialogue:    ctxengine.NewDialogueCompactor(ctxengine.ExtractiveSummarizer{}, cfg.Assembler),
		Extractor:   extractor,
		Hooks:       hooks,
		Metrics:     deps.Metrics,
		Logger:      logger,
		RecentTurns: cfg.RecentTurns,
	})
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	out.Pipeline = p
	logger.Info("engine ready", "persona_dir", root, "extract_facts", cfg.ExtractFacts)
	return out, nil
}

func openAuditLog(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("app: creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("app: opening audit log: %w", err)
	}
	return f, nil
}

// schedulerModule wraps the maintenance scheduler so it participates in
// the App lifecycle.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "maintenance"}
}

func (m *schedulerModule) Start() error {
	return m.scheduler.Start()
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// maintenanceJobs returns the jobs the engine's store and history support.
func maintenanceJobs(e *Engine, cfg config.MaintenanceConfig, metrics *telemetry.Metrics, audit *security.AuditLogger, logger *slog.Logger) []cron.Job {
	jobs := []cron.Job{&cron.HistoryTrimJob{
		History:      e.History,
		Keep:         cfg.Keep(),
		Audit:        audit,
		Logger:       logger,
		ScheduleExpr: cfg.HistoryTrimSchedule,
	}}
	if counter, ok := e.Store.(cron.RecordCounter); ok {
		jobs = append(jobs, &cron.StoreStatsJob{
			Store:        counter,
			Metrics:      metrics,
			Logger:       logger,
			ScheduleExpr: cfg.StoreStatsSchedule,
		})
	}
	if opt, ok := e.Store.(cron.Optimizer); ok {
		jobs = append(jobs, &cron.OptimizeJob{
			Store:        opt,
			Logger:       logger,
			ScheduleExpr: cfg.OptimizeSchedule,
		})
	}
	return jobs
}

// wireMaintenance registers the maintenance jobs and appends the scheduler
// to the app lifecycle. Must be called after LoadModules and before Start.
func wireMaintenance(application *core.App, e *Engine, cfg config.MaintenanceConfig, metrics *telemetry.Metrics, audit *security.AuditLogger, logger *slog.Logger) error {
	if cfg.Disabled {
		logger.Info("maintenance jobs disabled")
		return nil
	}
	scheduler := cron.NewScheduler(logger.With("component", "maintenance"), cron.WithMetrics(metrics))
	for _, job := range maintenanceJobs(e, cfg, metrics, audit, logger) {
		if err := scheduler.RegisterJob(job); err != nil {
			return err
		}
	}
	application.AppendModule("maintenance", &schedulerModule{scheduler: scheduler})
	return nil
}
