package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/mnemo/internal/config"
	"github.com/flemzord/mnemo/internal/core"
)

// Hook runs after modules have been reloaded with the new configuration.
type Hook func(ctx context.Context, cfg *config.Config) error

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app    *core.App
	base   *core.AppContext
	logger *slog.Logger
	hooks  []Hook
}

// NewHandler creates a reload handler. Reloaded modules see the services
// registered on base.
func NewHandler(app *core.App, base *core.AppContext, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{app: app, base: base, logger: logger}
}

// OnReload registers fn to run on every successful config load. Must be
// called before the first reload.
func (h *Handler) OnReload(fn Hook) {
	h.hooks = append(h.hooks, fn)
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, cfg)
}

// HandleReloadFromConfig reloads modules from a pre-loaded config. The
// caller must have validated it.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg)
}

func (h *Handler) handleReload(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	var errs []error
	if err := h.app.ReloadModules(h.base.WithModuleConfigs(cfg.Modules)); err != nil {
		errs = append(errs, fmt.Errorf("reloading modules: %w", err))
	}
	for _, fn := range h.hooks {
		if err := fn(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	h.logger.Info("configuration reloaded successfully")
	return nil
}
