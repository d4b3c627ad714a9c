// Package cron runs the engine's periodic maintenance jobs.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/telemetry"
)

// Job is a periodic maintenance task. Run must return when ctx is done.
type Job interface {
	Name() string
	// Schedule is a 5-field cron expression.
	Schedule() string
	Run(ctx context.Context) error
}

// HistoryTrimmer is the subset of memory.HistoryStore needed by the trim job.
type HistoryTrimmer interface {
	Trim(ctx context.Context, keep int) (int, error)
}

// HistoryTrimJob bounds every recent-dialogue window to Keep turns.
type HistoryTrimJob struct {
	History      HistoryTrimmer
	Keep         int
	Audit        *security.AuditLogger
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/15 * * * *"
}

// Compile-time interface check.
var _ Job = (*HistoryTrimJob)(nil)

// Name implements Job.
func (j *HistoryTrimJob) Name() string { return "history_trim" }

// Schedule implements Job.
func (j *HistoryTrimJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/15 * * * *"
}

// Run trims the history store.
func (j *HistoryTrimJob) Run(ctx context.Context) error {
	if j.Keep <= 0 {
		return fmt.Errorf("cron: history trim keep must be positive, got %d", j.Keep)
	}
	removed, err := j.History.Trim(ctx, j.Keep)
	if err != nil {
		return fmt.Errorf("cron: trimming history: %w", err)
	}
	if removed > 0 {
		j.Logger.Info("cron: trimmed dialogue history", "removed", removed, "keep", j.Keep)
		j.Audit.Log(security.AuditEvent{
			Type:   security.EventHistoryTrim,
			Detail: "history trimmed",
			Metadata: map[string]string{
				"removed": strconv.Itoa(removed),
				"keep":    strconv.Itoa(j.Keep),
			},
		})
	}
	return nil
}

// RecordCounter is a store that can enumerate and count its scopes.
type RecordCounter interface {
	memory.ScopeLister
	Count(ctx context.Context, scopeID string) (int, error)
}

// StoreStatsJob refreshes the per-scope record gauge.
type StoreStatsJob struct {
	Store        RecordCounter
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*StoreStatsJob)(nil)

// Name implements Job.
func (j *StoreStatsJob) Name() string { return "store_stats" }

// Schedule implements Job.
func (j *StoreStatsJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run counts the records of every scope. A failing scope does not stop the
// others; the errors are joined.
func (j *StoreStatsJob) Run(ctx context.Context) error {
	scopes, err := j.Store.Scopes(ctx)
	if err != nil {
		return fmt.Errorf("cron: listing scopes: %w", err)
	}
	var errs []error
	total := 0
	for _, scope := range scopes {
		if ctx.Err() != nil {
			return fmt.Errorf("cron: store stats cancelled: %w", ctx.Err())
		}
		n, err := j.Store.Count(ctx, scope)
		if err != nil {
			errs = append(errs, fmt.Errorf("counting scope %s: %w", scope, err))
			continue
		}
		j.Metrics.SetStoreRecords(scope, n)
		total += n
	}
	j.Logger.Debug("cron: store stats refreshed", "scopes", len(scopes), "records", total)
	return errors.Join(errs...)
}

// Optimizer is implemented by stores with an offline optimization pass.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// OptimizeJob runs the store's optimization pass.
type OptimizeJob struct {
	Store        Optimizer
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "30 3 * * *"
}

// Compile-time interface check.
var _ Job = (*OptimizeJob)(nil)

// Name implements Job.
func (j *OptimizeJob) Name() string { return "store_optimize" }

// Schedule implements Job.
func (j *OptimizeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "30 3 * * *"
}

// Run optimizes the store.
func (j *OptimizeJob) Run(ctx context.Context) error {
	if err := j.Store.Optimize(ctx); err != nil {
		return fmt.Errorf("cron: optimizing store: %w", err)
	}
	j.Logger.Debug("cron: store optimized")
	return nil
}
