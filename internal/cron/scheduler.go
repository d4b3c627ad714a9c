package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/mnemo/internal/telemetry"
)

// ErrJobBusy is returned by RunNow when the job is already running.
var ErrJobBusy = errors.New("cron: job already running")

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule checks a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return scheduleParser.Parse(expr)
}

// JobStatus is a snapshot of one job's run history.
type JobStatus struct {
	Name      string
	Schedule  string
	Runs      int
	Failures  int
	Skipped   int
	LastRun   time.Time
	LastError string
	Next      time.Time
}

// entry is one registered job. lock serializes runs; mu guards status.
type entry struct {
	job  Job
	lock sync.Mutex
	mu   sync.Mutex
	st   JobStatus
	id   cron.EntryID
}

// Scheduler runs maintenance jobs on their cron schedules. A job never
// overlaps itself: a tick that finds the previous run still going is
// skipped and counted.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]*entry
	order   []string
	logger  *slog.Logger
	metrics *telemetry.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMetrics counts job outcomes on m.
func WithMetrics(m *telemetry.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterJob adds j. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if s.cron != nil {
		return fmt.Errorf("cron: cannot register %q after start", name)
	}
	s.entries[name] = &entry{job: j, st: JobStatus{Name: name, Schedule: j.Schedule()}}
	s.order = append(s.order, name)
	return nil
}

// Start validates every schedule, then begins ticking. On a bad schedule
// nothing is started and the errors of all offending jobs are returned.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("cron: scheduler already started")
	}

	var errs []error
	scheds := make(map[string]cron.Schedule, len(s.entries))
	for _, name := range s.order {
		e := s.entries[name]
		sched, err := ParseSchedule(e.st.Schedule)
		if err != nil {
			errs = append(errs, fmt.Errorf("cron: invalid schedule %q for job %q: %w", e.st.Schedule, name, err))
			continue
		}
		scheds[name] = sched
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c := cron.New(cron.WithParser(scheduleParser))
	for _, name := range s.order {
		e := s.entries[name]
		e.id = c.Schedule(scheds[name], cron.FuncJob(func() { s.tick(e) }))
	}
	s.cron = c
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", strings.Join(s.order, ","))
	return nil
}

// tick is one scheduled invocation.
func (s *Scheduler) tick(e *entry) {
	if !e.lock.TryLock() {
		e.mu.Lock()
		e.st.Skipped++
		e.mu.Unlock()
		s.metrics.MaintenanceRun(e.st.Name, "skipped")
		s.logger.Warn("cron: job still running, tick skipped", "job", e.st.Name)
		return
	}
	defer e.lock.Unlock()
	s.run(s.ctx, e)
}

// run executes e with its run lock held.
func (s *Scheduler) run(ctx context.Context, e *entry) error {
	start := time.Now()
	err := e.job.Run(ctx)

	e.mu.Lock()
	e.st.Runs++
	e.st.LastRun = start
	e.st.LastError = ""
	if err != nil {
		e.st.Failures++
		e.st.LastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		s.metrics.MaintenanceRun(e.st.Name, "error")
		s.logger.Error("cron: job failed", "job", e.st.Name, "error", err)
		return err
	}
	s.metrics.MaintenanceRun(e.st.Name, "ok")
	s.logger.Debug("cron: job done", "job", e.st.Name, "took", time.Since(start))
	return nil
}

// RunNow runs the named job immediately on the caller's goroutine. It
// fails with ErrJobBusy instead of waiting for a run in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	if !e.lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobBusy, name)
	}
	defer e.lock.Unlock()
	return s.run(ctx, e)
}

// Status reports every job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		e.mu.Lock()
		st := e.st
		e.mu.Unlock()
		if s.cron != nil {
			st.Next = s.cron.Entry(e.id).Next
		}
		out = append(out, st)
	}
	return out
}

// Jobs lists the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(slices.Values(s.order))
}

// Stop cancels running jobs and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()

	s.cancel()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for jobs: %w", ctx.Err())
	}
}
