// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for mnemo.
package config

import (
	"gopkg.in/yaml.v3"

	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/retrieval"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "memory.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Engine tunes the recall and observe paths.
	Engine EngineConfig `yaml:"engine"`

	// Security holds optional rate limiting settings.
	Security *SecurityConfig `yaml:"security,omitempty"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// EngineConfig groups the settings of every engine component.
type EngineConfig struct {
	Classifier retrieval.ClassifierConfig `yaml:"classifier"`
	Retrieval  retrieval.EngineConfig     `yaml:"retrieval"`
	Assembler  ctxengine.Config           `yaml:"assembler"`
	Writer     memory.WriterConfig        `yaml:"writer"`

	// PersonaDir holds <scope>.md identity files and <scope>/guidance notes.
	// Empty means <data_dir>/personas.
	PersonaDir string `yaml:"persona_dir"`

	// RecentTurns is the recent-dialogue window. Zero means 8.
	RecentTurns int `yaml:"recent_turns"`

	// ExtractFacts enables pattern-based fact extraction on observe.
	ExtractFacts bool `yaml:"extract_facts"`

	// AuditLog, when set, appends one JSON line per observed exchange.
	AuditLog string `yaml:"audit_log"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`
}

// TelemetryConfig holds tracing export settings. Metrics are always on.
type TelemetryConfig struct {
	Tracing telemetry.TracingConfig `yaml:"tracing"`
}

// MaintenanceConfig schedules the background jobs. Empty schedules use the
// job defaults.
type MaintenanceConfig struct {
	Disabled bool `yaml:"disabled"`

	// HistoryKeep is the number of turns kept per session. Zero means 200.
	HistoryKeep int `yaml:"history_keep"`

	HistoryTrimSchedule string `yaml:"history_trim_schedule"`
	StoreStatsSchedule  string `yaml:"store_stats_schedule"`
	OptimizeSchedule    string `yaml:"optimize_schedule"`
}

// DefaultHistoryKeep is used when maintenance.history_keep is unset.
const DefaultHistoryKeep = 200

// Keep returns HistoryKeep or its default.
func (m MaintenanceConfig) Keep() int {
	if m.HistoryKeep <= 0 {
		return DefaultHistoryKeep
	}
	return m.HistoryKeep
}
