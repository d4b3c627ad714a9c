// Package hooktest provides test doubles for the hook package.
package hooktest

import (
	"context"
	"sync"

	"github.com/flemzord/mnemo/internal/hook"
)

// Call is what a MockHook saw on one invocation.
type Call struct {
	ScopeID string
	Query   string
	Records int // len(hctx.Records), for after_observe hooks
}

// MockHook is a configurable hook.Hook that records its invocations. With
// no ExecuteFunc it returns ActionContinue.
type MockHook struct {
	PositionVal hook.Position
	PriorityVal int
	ExecuteFunc func(ctx context.Context, hctx *hook.Context) (hook.Action, error)

	mu    sync.Mutex
	calls []Call
}

var _ hook.Hook = (*MockHook)(nil)

// SkipRecall returns a before_recall hook that suppresses retrieval.
func SkipRecall(priority int) *MockHook {
	return &MockHook{
		PositionVal: hook.BeforeRecall,
		PriorityVal: priority,
		ExecuteFunc: func(context.Context, *hook.Context) (hook.Action, error) {
			return hook.ActionSkip, nil
		},
	}
}

func (m *MockHook) Position() hook.Position { return m.PositionVal }
func (m *MockHook) Priority() int           { return m.PriorityVal }

// Execute records the call, then delegates to ExecuteFunc.
func (m *MockHook) Execute(ctx context.Context, hctx *hook.Context) (hook.Action, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{ScopeID: hctx.ScopeID, Query: hctx.Query, Records: len(hctx.Records)})
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, hctx)
	}
	return hook.ActionContinue, nil
}

// CallCount returns the number of invocations.
func (m *MockHook) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded invocations.
func (m *MockHook) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
