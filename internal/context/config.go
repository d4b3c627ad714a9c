// Package ctxengine packs prioritized text components into a token-budgeted
// context for a response generator, and renders the recent-dialogue window.
package ctxengine

import (
	"errors"
	"fmt"
)

// DefaultElisionMarker replaces the omitted middle of a truncated component.
const DefaultElisionMarker = "\n[...]\n"

// Config holds the tuning knobs for context assembly.
type Config struct {
	// Budget is the token budget used when a request does not carry one.
	Budget int `yaml:"budget"`

	// ElisionMarker is inserted where a required component was cut.
	ElisionMarker string `yaml:"elision_marker"`

	// PrefixRatio and SuffixRatio are the shares of a component kept at
	// its start and end by the first truncation round. Later rounds keep
	// the same 3:1 split of a shrinking span.
	PrefixRatio float64 `yaml:"prefix_ratio"`
	SuffixRatio float64 `yaml:"suffix_ratio"`

	// MaxTruncationRounds bounds how often one component may be cut.
	MaxTruncationRounds int `yaml:"max_truncation_rounds"`

	// MinKeptChars is the smallest span a truncated component may keep.
	MinKeptChars int `yaml:"min_kept_chars"`

	// CharsPerToken configures the default CharEstimator.
	CharsPerToken float64 `yaml:"chars_per_token"`

	// CompactionThreshold triggers dialogue compaction when the window
	// holds more turns than this.
	CompactionThreshold int `yaml:"compaction_threshold"`

	// RetainRecent is the number of newest turns kept verbatim after
	// compaction.
	RetainRecent int `yaml:"retain_recent"`
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg Config) withDefaults() Config {
	if cfg.Budget == 0 {
		cfg.Budget = 4000
	}
	if cfg.ElisionMarker == "" {
		cfg.ElisionMarker = DefaultElisionMarker
	}
	if cfg.PrefixRatio == 0 {
		cfg.PrefixRatio = 0.6
	}
	if cfg.SuffixRatio == 0 {
		cfg.SuffixRatio = 0.2
	}
	if cfg.MaxTruncationRounds == 0 {
		cfg.MaxTruncationRounds = 24
	}
	if cfg.MinKeptChars == 0 {
		cfg.MinKeptChars = 16
	}
	if cfg.CharsPerToken == 0 {
		cfg.CharsPerToken = 4.0
	}
	if cfg.CompactionThreshold == 0 {
		cfg.CompactionThreshold = 20
	}
	if cfg.RetainRecent == 0 {
		cfg.RetainRecent = 10
	}
	return cfg
}

// Validate reports every invalid field.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.Budget < 0 {
		errs = append(errs, fmt.Errorf("budget must not be negative, got %d", cfg.Budget))
	}
	if cfg.PrefixRatio < 0 || cfg.SuffixRatio < 0 {
		errs = append(errs, errors.New("prefix_ratio and suffix_ratio must not be negative"))
	}
	if cfg.PrefixRatio+cfg.SuffixRatio >= 1 {
		errs = append(errs, fmt.Errorf("prefix_ratio + suffix_ratio must be below 1, got %.2f", cfg.PrefixRatio+cfg.SuffixRatio))
	}
	if cfg.MaxTruncationRounds < 0 || cfg.MinKeptChars < 0 {
		errs = append(errs, errors.New("truncation limits must not be negative"))
	}
	if cfg.RetainRecent < 0 || cfg.CompactionThreshold < 0 {
		errs = append(errs, errors.New("dialogue window sizes must not be negative"))
	}
	if cfg.RetainRecent > 0 && cfg.CompactionThreshold > 0 && cfg.RetainRecent > cfg.CompactionThreshold {
		errs = append(errs, fmt.Errorf("retain_recent (%d) must not exceed compaction_threshold (%d)", cfg.RetainRecent, cfg.CompactionThreshold))
	}
	return errors.Join(errs...)
}
