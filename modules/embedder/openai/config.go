package openai

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/mnemo/internal/memory"
)

// Config holds the configuration for the OpenAI-compatible embedder module.
type Config struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`

	// Prefixes are prepended to the text of a channel before embedding so
	// that channels built from the same text do not collapse into one vector.
	Prefixes map[memory.Channel]string `yaml:"prefixes"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimensions == 0 {
		c.Dimensions = knownDimensions[c.Model]
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.Prefixes == nil {
		c.Prefixes = map[memory.Channel]string{memory.ChannelAffect: "Emotional tone: "}
	}
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated by validate.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c *Config) validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("embedder.openai: api_key is required"))
	}
	if c.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedder.openai: dimensions must be set for model %q", c.Model))
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("embedder.openai: invalid timeout %q: %w", c.Timeout, err))
	}
	for ch := range c.Prefixes {
		if !ch.Valid() {
			errs = append(errs, fmt.Errorf("embedder.openai: unknown channel %q in prefixes", ch))
		}
	}
	return errors.Join(errs...)
}

// knownDimensions maps embedding models to their default output size.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}
