package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveConfigPath returns the first existing config file among
// ConfigCandidates. $MNEMO_CONFIG, when set, must exist.
func ResolveConfigPath() (string, error) {
	if path := os.Getenv("MNEMO_CONFIG"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("MNEMO_CONFIG: %w", err)
		}
		return path, nil
	}
	candidates := ConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// ConfigCandidates lists the config locations in search order:
// $XDG_CONFIG_HOME/mnemo/mnemo.yaml (or ~/.config/mnemo/mnemo.yaml when
// XDG_CONFIG_HOME is unset), then ./mnemo.yaml.
func ConfigCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "mnemo", "mnemo.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mnemo", "mnemo.yaml"))
	}
	return append(candidates, "mnemo.yaml")
}

// DefaultDataDir is where stores, personas and audit logs live unless
// configured otherwise: $MNEMO_DATA_DIR, then $XDG_DATA_HOME/mnemo, then
// ~/.local/share/mnemo.
func DefaultDataDir() string {
	if dir := os.Getenv("MNEMO_DATA_DIR"); dir != "" {
		return dir
	}
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "mnemo")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "mnemo")
}

// DefaultWorkspace returns the current working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
