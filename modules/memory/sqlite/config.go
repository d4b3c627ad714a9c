package sqlite

import (
	"errors"
	"fmt"
	"time"
)

const defaultDBFile = "memory.db"

// Journal modes accepted in the config.
const (
	JournalWAL    = "wal"
	JournalDelete = "delete"
)

// Config is the memory.sqlite section.
//
//	memory.sqlite:
//	  path: /var/lib/mnemo/memory.db   # default {data_dir}/memory.db
//	  journal: wal                     # wal or delete
//	  busy_timeout: 5s
//	  dimensions: 384                  # default from memory.embedder
type Config struct {
	Path        string        `yaml:"path"`
	Journal     string        `yaml:"journal"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Dimensions  int           `yaml:"dimensions"`
}

func (c *Config) defaults() {
	if c.Journal == "" {
		c.Journal = JournalWAL
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Journal != JournalWAL && c.Journal != JournalDelete {
		errs = append(errs, fmt.Errorf("sqlite: journal must be %q or %q, got %q", JournalWAL, JournalDelete, c.Journal))
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite: busy_timeout must be non-negative, got %s", c.BusyTimeout))
	}
	if c.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("sqlite: dimensions must be positive, got %d", c.Dimensions))
	}
	return errors.Join(errs...)
}

// pragmas returns the connection settings applied at open.
func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode=" + c.Journal,
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()),
	}
}
