package chromem

import (
	"errors"
	"fmt"
)

// Config holds the chromem memory module configuration.
type Config struct {
	// Path enables persistence under this directory. Empty keeps the
	// database in memory only. Relative paths resolve against the data dir.
	Path string `yaml:"path"`

	// Compress gzips persisted documents.
	Compress bool `yaml:"compress"`

	// Dimensions is the vector length D. When zero it is taken from the
	// registered memory.embedder service.
	Dimensions int `yaml:"dimensions"`
}

func (c *Config) validate() error {
	var errs []error
	if c.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("chromem: dimensions must be positive, got %d", c.Dimensions))
	}
	if c.Compress && c.Path == "" {
		errs = append(errs, errors.New("chromem: compress requires a path"))
	}
	return errors.Join(errs...)
}
