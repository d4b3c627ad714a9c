// Package gateway exposes the memory engine over HTTP: storing exchanges
// and facts, retrieving memories and assembling contexts per scope. It binds
// to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/pipeline"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Service names resolved at Start.
const (
	ServicePipeline    = "mnemo.pipeline"
	ServiceMetrics     = "telemetry.metrics"
	ServiceAudit       = "security.audit"
	ServiceRateLimiter = "security.ratelimiter"
	ServiceHealth      = "core.health"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// auth is swapped on reload; nil means config.Auth.
	auth atomic.Pointer[AuthConfig]

	// Resolved lazily at Start() via service registry.
	pipeline *pipeline.Pipeline
	metrics  *telemetry.Metrics
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
	health   HealthReporter
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	addr, err := net.ResolveTCPAddr("tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if !g.config.Auth.IsConfigured() && g.logger != nil && (addr.IP == nil || !addr.IP.IsLoopback()) {
		g.logger.Warn("gateway bound to a non-loopback address without authentication", "bind", g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolve()

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolve binds the pipeline and optional services. Missing optional
// services degrade gracefully: no metrics, no audit trail, no rate limits.
func (g *Gateway) resolve() {
	if g.appCtx == nil {
		return
	}
	if p, ok := core.ServiceAs[*pipeline.Pipeline](g.appCtx, ServicePipeline); ok {
		g.pipeline = p
	} else {
		g.logger.Warn("gateway: no pipeline registered, API endpoints will return 503")
	}
	if m, ok := core.ServiceAs[*telemetry.Metrics](g.appCtx, ServiceMetrics); ok {
		g.metrics = m
	}
	if a, ok := core.ServiceAs[*security.AuditLogger](g.appCtx, ServiceAudit); ok {
		g.audit = a
	}
	if h, ok := core.ServiceAs[HealthReporter](g.appCtx, ServiceHealth); ok {
		g.health = h
	}
	switch {
	case g.config.RateLimit != nil:
		g.limiter = security.NewRateLimiter(*g.config.RateLimit)
	default:
		if rl, ok := core.ServiceAs[*security.RateLimiter](g.appCtx, ServiceRateLimiter); ok {
			g.limiter = rl
		}
	}
}

// Reload implements core.Reloader. Credentials take effect for the next
// request; bind and timeout changes need a restart.
func (g *Gateway) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig("gateway.http")
	if !ok {
		return nil
	}
	var next Config
	if err := node.Decode(&next); err != nil {
		return fmt.Errorf("gateway: decoding config: %w", err)
	}
	next.defaults()
	if next.Bind != g.config.Bind {
		g.logger.Warn("gateway bind address changed, restart to apply", "current", g.config.Bind, "configured", next.Bind)
	}
	g.auth.Store(&next.Auth)
	g.logger.Info("gateway credentials reloaded", "auth", next.Auth.IsConfigured())
	return nil
}

func (g *Gateway) currentAuth() AuthConfig {
	if a := g.auth.Load(); a != nil {
		return *a
	}
	return g.config.Auth
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
