// Package app provides the shared entry point of the mnemo binary: it builds
// the runtime from configuration and drives its lifecycle.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flemzord/mnemo/internal/reload"
)

// Run builds the runtime, starts all modules, and blocks until ctx is
// cancelled or a shutdown signal is received. SIGHUP and file-change events
// trigger a live configuration reload.
func Run(ctx context.Context, params Params) error {
	rt, err := Build(ctx, params)
	if err != nil {
		return err
	}
	logger := rt.Logger
	logger.Info("starting mnemo", "version", params.Version, "config", rt.ConfigPath)

	if err := rt.Start(); err != nil {
		rt.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath: rt.ConfigPath,
		PersonaDir: rt.Engine.PersonaDir,
	})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			rt.Shutdown(context.Background())
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := rt.Reload.HandleReload(watchCtx, rt.ConfigPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			rt.Shutdown(context.Background())
			logger.Info("shutdown complete")
			return nil
		case evt := <-watcher.Events():
			switch evt.Type {
			case reload.EventPersonaChanged:
				logger.Info("persona files changed, dropping cached identities", "dir", evt.Path)
				rt.Engine.Identity.Reset()
			default:
				logger.Info("config file changed, reloading", "path", evt.Path)
				if err := rt.Reload.HandleReload(watchCtx, evt.Path); err != nil {
					logger.Error("reload failed", "error", err)
				}
			}
		}
	}
}
