package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/config"
	"github.com/flemzord/mnemo/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// reloadable records the config it was reloaded with.
type reloadable struct {
	value string
	svc   any
}

func (m *reloadable) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "test.reloadable", New: func() core.Module { return &reloadable{} }}
}

func (m *reloadable) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig("test.reloadable")
	if !ok {
		return errors.New("no config")
	}
	var cfg struct {
		Value string `yaml:"value"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	m.value = cfg.Value
	m.svc, _ = ctx.GetService("shared")
	return nil
}

func newHandler(t *testing.T) (*Handler, *core.App, *core.AppContext) {
	t.Helper()
	logger := testLogger()
	appCtx := core.NewAppContext(logger, t.TempDir(), t.TempDir())
	a := core.NewApp(appCtx)
	return NewHandler(a, appCtx, logger), a, appCtx
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	h, _, _ := newHandler(t)

	err := h.HandleReload(context.Background(), "/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("modules: {}"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	h, _, _ := newHandler(t)
	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error")
	}
}

func TestHandler_HandleReload_UnknownModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.yaml")
	content := "version: \"1\"\nmodules:\n  fake.mod: {}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	h, _, _ := newHandler(t)
	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error for unknown module")
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	h, _, _ := newHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	cfg := &config.Config{Version: "1"}
	if err := h.HandleReloadFromConfig(ctx, cfg); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestHandler_ReloadsModulesAndRunsHooks(t *testing.T) {
	h, a, appCtx := newHandler(t)
	appCtx.RegisterService("shared", 7)

	mod := &reloadable{}
	a.AppendModule("test.reloadable", mod)

	var hookSaw string
	h.OnReload(func(_ context.Context, cfg *config.Config) error {
		hookSaw = cfg.Engine.PersonaDir
		return nil
	})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("value: fresh"), &node); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Version: "1",
		Modules: map[string]yaml.Node{"test.reloadable": *node.Content[0]},
		Engine:  config.EngineConfig{PersonaDir: "/srv/personas"},
	}
	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if mod.value != "fresh" {
		t.Errorf("module value = %q, want fresh", mod.value)
	}
	if mod.svc != 7 {
		t.Errorf("module saw service %v, want the shared registry", mod.svc)
	}
	if hookSaw != "/srv/personas" {
		t.Errorf("hook saw %q", hookSaw)
	}
}

func TestHandler_HookErrorsAreJoined(t *testing.T) {
	h, _, _ := newHandler(t)
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	h.OnReload(func(context.Context, *config.Config) error { return errA })
	h.OnReload(func(context.Context, *config.Config) error { return errB })

	err := h.HandleReloadFromConfig(context.Background(), &config.Config{Version: "1"})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err = %v, want both hook errors", err)
	}
}
