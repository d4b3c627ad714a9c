package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// varRef matches $${VAR} (escaped), ${VAR} and ${VAR:-default}.
var varRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the configuration file at path. See Parse.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment references in raw and decodes the result.
// Unknown top-level and engine keys are rejected; module sections are kept
// as raw nodes and decoded by their modules.
func Parse(raw []byte) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return &cfg, nil
}

// expandEnv substitutes ${VAR} with the environment value, falling back to
// the :- default when VAR is unset. $${VAR} is left as a literal ${VAR}.
// Every unresolved name is reported once.
func expandEnv(raw []byte) ([]byte, error) {
	var missing []string

	out := varRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		if bytes.HasPrefix(ref, []byte("$$")) {
			return ref[1:]
		}
		m := varRef.FindSubmatch(ref)
		name := string(m[1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if m[2] != nil || bytes.Contains(ref, []byte(":-")) {
			return m[2]
		}
		if !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return ref
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
