package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/pipeline"

	_ "github.com/flemzord/mnemo/modules/embedder/hash"
	_ "github.com/flemzord/mnemo/modules/memory/sqlite"
)

func writeRuntimeConfig(t *testing.T, extra string) (path, dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	body := `version: "1"
modules:
  embedder.hash:
    dimensions: 1024
  memory.sqlite:
    path: ` + filepath.Join(dataDir, "mnemo.db") + `
engine:
  persona_dir: ` + filepath.Join(dataDir, "personas") + `
  audit_log: ` + filepath.Join(dataDir, "audit", "observe.jsonl") + `
` + extra
	path = filepath.Join(t.TempDir(), "mnemo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path, dataDir
}

func TestBuild_WiresEngineAndMaintenance(t *testing.T) {
	path, dataDir := writeRuntimeConfig(t, "")
	ctx := context.Background()

	rt, err := Build(ctx, Params{ConfigPath: path, DataDir: dataDir, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Shutdown(ctx)

	if _, ok := rt.App.Module("maintenance"); !ok {
		t.Error("maintenance scheduler not appended")
	}
	if !slices.Contains(rt.App.HealthChecks(), "memory.sqlite") {
		t.Errorf("health checks = %v, want memory.sqlite", rt.App.HealthChecks())
	}
	if failed := rt.App.Health(ctx); failed != nil {
		t.Errorf("Health() = %v", failed)
	}
	svc, ok := rt.Context.GetService(ServicePipeline)
	if !ok || svc.(*pipeline.Pipeline) != rt.Engine.Pipeline {
		t.Fatal("pipeline service not registered")
	}

	p := rt.Engine.Pipeline
	if _, err := p.Observe(ctx, memory.Exchange{
		ScopeID: "aria", OwnerID: "u1",
		UserText: "I love sushi", AgentText: "Salmon rolls are great!",
		Origin: memory.Visibility{Level: memory.PublicChannel, ChannelID: "lobby"},
	}); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if _, err := p.Remember(ctx, memory.FactInput{
		ScopeID: "aria", OwnerID: "u1", Text: "user has $1M estate",
		Visibility: memory.Visibility{Level: memory.PrivateDirect},
	}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	out, err := p.Recall(ctx, pipeline.RecallRequest{
		ScopeID: "aria",
		Access:  memory.QueryContext{OwnerID: "u1", Kind: memory.ContextDirect},
		Query:   "do you remember my estate",
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if !strings.Contains(out.Context.Text(), "user has $1M estate") {
		t.Errorf("direct context = %q, want the fact", out.Context.Text())
	}

	audit, err := os.ReadFile(filepath.Join(dataDir, "audit", "observe.jsonl"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	if len(strings.TrimSpace(string(audit))) == 0 {
		t.Error("audit hook wrote nothing")
	}
}

func TestBuild_SkipOptions(t *testing.T) {
	path, dataDir := writeRuntimeConfig(t, "maintenance:\n  disabled: false\n")
	ctx := context.Background()

	rt, err := Build(ctx, Params{
		ConfigPath:      path,
		DataDir:         dataDir,
		LogOutput:       io.Discard,
		SkipMaintenance: true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Shutdown(ctx)

	if _, ok := rt.App.Module("maintenance"); ok {
		t.Error("maintenance appended despite SkipMaintenance")
	}
}

func TestBuild_SkipStoreFails(t *testing.T) {
	path, dataDir := writeRuntimeConfig(t, "")

	_, err := Build(context.Background(), Params{
		ConfigPath:  path,
		DataDir:     dataDir,
		LogOutput:   io.Discard,
		SkipModules: []string{"memory.sqlite"},
	})
	if err == nil || !strings.Contains(err.Error(), "no memory store") {
		t.Errorf("err = %v, want missing store", err)
	}
}

func TestBuild_ReloadResetsIdentity(t *testing.T) {
	path, dataDir := writeRuntimeConfig(t, "")
	ctx := context.Background()

	rt, err := Build(ctx, Params{ConfigPath: path, DataDir: dataDir, LogOutput: io.Discard, SkipMaintenance: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Shutdown(ctx)

	if _, err := rt.Engine.Identity.Get(ctx, "aria"); err != nil {
		t.Fatalf("identity: %v", err)
	}
	if rt.Engine.Identity.Len() != 1 {
		t.Fatalf("identity cache len = %d", rt.Engine.Identity.Len())
	}
	if err := rt.Reload.HandleReload(ctx, path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if rt.Engine.Identity.Len() != 0 {
		t.Errorf("identity cache len after reload = %d, want 0", rt.Engine.Identity.Len())
	}
}
