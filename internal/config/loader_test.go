package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mnemo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	t.Setenv("MNEMO_TEST_TOKEN", "s3cret")
	path := writeConfig(t, `
version: "1"
modules:
  memory.sqlite:
    path: ${MNEMO_TEST_DB:-mnemo.db}
  embedder.hash:
    dimensions: 256
  gateway.http:
    auth:
      bearer_token: ${MNEMO_TEST_TOKEN}
engine:
  persona_dir: /srv/personas
  recent_turns: 12
  extract_facts: true
  retrieval:
    k: 7
    channel_timeout: 250ms
  assembler:
    budget: 2000
  writer:
    channels: [affect, context]
security:
  rate_limits:
    reads_per_min: 10
telemetry:
  tracing:
    endpoint: localhost:4318
maintenance:
  history_keep: 50
  optimize_schedule: "0 4 * * *"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Modules) != 3 {
		t.Errorf("modules = %d, want 3", len(cfg.Modules))
	}
	var gw struct {
		Auth struct {
			BearerToken string `yaml:"bearer_token"`
		} `yaml:"auth"`
	}
	node := cfg.Modules["gateway.http"]
	if err := node.Decode(&gw); err != nil {
		t.Fatalf("decode gateway: %v", err)
	}
	if gw.Auth.BearerToken != "s3cret" {
		t.Errorf("bearer_token = %q, want expanded value", gw.Auth.BearerToken)
	}
	var db struct {
		Path string `yaml:"path"`
	}
	node = cfg.Modules["memory.sqlite"]
	if err := node.Decode(&db); err != nil {
		t.Fatalf("decode sqlite: %v", err)
	}
	if db.Path != "mnemo.db" {
		t.Errorf("path = %q, want default", db.Path)
	}

	e := cfg.Engine
	if e.PersonaDir != "/srv/personas" || e.RecentTurns != 12 || !e.ExtractFacts {
		t.Errorf("engine = %+v", e)
	}
	if e.Retrieval.K != 7 || e.Retrieval.ChannelTimeout != 250*time.Millisecond {
		t.Errorf("retrieval = %+v", e.Retrieval)
	}
	if e.Assembler.Budget != 2000 {
		t.Errorf("budget = %d", e.Assembler.Budget)
	}
	if len(e.Writer.Channels) != 2 {
		t.Errorf("writer channels = %v", e.Writer.Channels)
	}
	if cfg.Security == nil || cfg.Security.RateLimits.ReadsPerMin != 10 {
		t.Errorf("security = %+v", cfg.Security)
	}
	if cfg.Telemetry.Tracing.Endpoint != "localhost:4318" {
		t.Errorf("tracing endpoint = %q", cfg.Telemetry.Tracing.Endpoint)
	}
	if cfg.Maintenance.Keep() != 50 || cfg.Maintenance.OptimizeSchedule != "0 4 * * *" {
		t.Errorf("maintenance = %+v", cfg.Maintenance)
	}
}

func TestLoad_UnresolvedVariables(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nmodules:\n  a: {token: ${MNEMO_UNSET_ONE}, other: ${MNEMO_UNSET_TWO}}\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved variables")
	}
	for _, name := range []string{"MNEMO_UNSET_ONE", "MNEMO_UNSET_TWO"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention %s: %v", name, err)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "version: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("MNEMO_TEST_HOST", "db.local")

	tests := []struct {
		in   string
		want string
	}{
		{"host: ${MNEMO_TEST_HOST}", "host: db.local"},
		{"host: ${MNEMO_TEST_MISSING:-fallback}", "host: fallback"},
		{"host: ${MNEMO_TEST_HOST:-fallback}", "host: db.local"},
		{"empty: ${MNEMO_TEST_MISSING:-}", "empty: "},
		{"plain: $HOME", "plain: $HOME"},
		{"literal: $${MNEMO_TEST_HOST}", "literal: ${MNEMO_TEST_HOST}"},
	}
	for _, tt := range tests {
		got, err := expandEnv([]byte(tt.in))
		if err != nil {
			t.Errorf("expandEnv(%q): %v", tt.in, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty document"},
		{"unknown top-level key", "version: \"1\"\nengin: {}\n", "engin"},
		{"unknown engine key", "version: \"1\"\nengine:\n  budget: 10\n", "budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParse_ModuleSectionsStayRaw(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("version: \"1\"\nmodules:\n  memory.sqlite:\n    anything_goes: true\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	node := cfg.Modules["memory.sqlite"]
	var v map[string]bool
	if err := node.Decode(&v); err != nil || !v["anything_goes"] {
		t.Errorf("module node = %v, %v", v, err)
	}
}

func TestResolve_EmbeddersThenStores(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http":  {},
		"embedder.hash": {},
		"memory.sqlite": {},
		"alpha.module":  {},
	}}
	got := Resolve(cfg)
	want := []string{"embedder.hash", "memory.sqlite", "alpha.module", "gateway.http"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}
