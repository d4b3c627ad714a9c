// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/mnemo/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockHistory is a test double for cron.HistoryTrimmer.
type MockHistory struct {
	TrimFunc  func(ctx context.Context, keep int) (int, error)
	TrimCalls atomic.Int32
}

// Compile-time interface check.
var _ cron.HistoryTrimmer = (*MockHistory)(nil)

// Trim implements cron.HistoryTrimmer.
func (m *MockHistory) Trim(ctx context.Context, keep int) (int, error) {
	m.TrimCalls.Add(1)
	if m.TrimFunc != nil {
		return m.TrimFunc(ctx, keep)
	}
	return 0, nil
}

// MockOptimizer is a test double for cron.Optimizer.
type MockOptimizer struct {
	Err   error
	Calls atomic.Int32
}

// Compile-time interface check.
var _ cron.Optimizer = (*MockOptimizer)(nil)

// Optimize implements cron.Optimizer.
func (m *MockOptimizer) Optimize(_ context.Context) error {
	m.Calls.Add(1)
	return m.Err
}
