package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/cron"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, checks that all referenced module IDs
// exist in the registry, requires exactly one store and one embedder
// module, and validates the engine, security and maintenance blocks.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	var stores, embedders []string
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		switch core.ModuleID(id).Namespace() {
		case core.NamespaceMemory:
			stores = append(stores, id)
		case core.NamespaceEmbedder:
			embedders = append(embedders, id)
		}
	}
	if len(cfg.Modules) > 0 {
		errs = append(errs, exactlyOne("memory store", stores)...)
		errs = append(errs, exactlyOne("embedder", embedders)...)
	}

	errs = append(errs, validateEngine(cfg.Engine)...)
	errs = append(errs, validateSecurity(cfg.Security)...)
	errs = append(errs, validateMaintenance(cfg.Maintenance)...)

	return errors.Join(errs...)
}

func exactlyOne(kind string, ids []string) []error {
	switch len(ids) {
	case 1:
		return nil
	case 0:
		return []error{fmt.Errorf("config: a %s module is required", kind)}
	default:
		return []error{fmt.Errorf("config: only one %s module may be configured, got %v", kind, ids)}
	}
}

func validateEngine(e EngineConfig) []error {
	var errs []error
	if err := e.Classifier.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.classifier: %w", err))
	}
	if err := e.Retrieval.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.retrieval: %w", err))
	}
	if err := e.Assembler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.assembler: %w", err))
	}
	for _, ch := range e.Writer.Channels {
		if !ch.Valid() {
			errs = append(errs, fmt.Errorf("config: engine.writer: unknown channel %q", ch))
		}
	}
	if e.RecentTurns < 0 {
		errs = append(errs, errors.New("config: engine.recent_turns must not be negative"))
	}
	return errs
}

func validateSecurity(sec *SecurityConfig) []error {
	if sec == nil {
		return nil
	}
	rl := sec.RateLimits
	if rl.ReadsPerMin < 0 || rl.WritesPerMin < 0 || rl.AuthPerMin < 0 || rl.MaxKeys < 0 {
		return []error{errors.New("config: security.rate_limits values must not be negative")}
	}
	return nil
}

func validateMaintenance(m MaintenanceConfig) []error {
	var errs []error
	if m.HistoryKeep < 0 {
		errs = append(errs, errors.New("config: maintenance.history_keep must not be negative"))
	}
	schedules := map[string]string{
		"history_trim_schedule": m.HistoryTrimSchedule,
		"store_stats_schedule":  m.StoreStatsSchedule,
		"optimize_schedule":     m.OptimizeSchedule,
	}
	for field, expr := range schedules {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: maintenance.%s: %w", field, err))
		}
	}
	return errs
}
