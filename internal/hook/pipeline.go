package hook

import (
	"context"
	"slices"
	"sync"
)

// Pipeline manages hook registration and execution.
// Hooks are grouped by position and sorted by (priority, registration order).
// Thread-safe: registrations use a write lock, executions use a read lock.
type Pipeline struct {
	mu    sync.RWMutex
	hooks map[Position][]registered
	seq   int
}

type registered struct {
	hook Hook
	seq  int
}

// NewPipeline creates a new empty hook pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{hooks: make(map[Position][]registered)}
}

// Register adds a hook to the pipeline.
func (p *Pipeline) Register(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := h.Position()
	p.hooks[pos] = append(p.hooks[pos], registered{hook: h, seq: p.seq})
	p.seq++
	slices.SortStableFunc(p.hooks[pos], func(a, b registered) int {
		if a.hook.Priority() != b.hook.Priority() {
			return a.hook.Priority() - b.hook.Priority()
		}
		return a.seq - b.seq
	})
}

// Len returns the number of hooks registered at pos.
func (p *Pipeline) Len(pos Position) int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.hooks[pos])
}

func (p *Pipeline) at(pos Position) []registered {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hooks[pos]
}

// RunBeforeRecall executes all BeforeRecall hooks in order.
// Short-circuits on ActionSkip. Errors are logged but don't stop execution.
func (p *Pipeline) RunBeforeRecall(ctx context.Context, hctx *Context) Action {
	hctx.Position = BeforeRecall
	for _, r := range p.at(BeforeRecall) {
		action, err := r.hook.Execute(ctx, hctx)
		logError(hctx, err, r.hook)
		if action == ActionSkip {
			return ActionSkip
		}
	}
	return ActionContinue
}

// RunBeforeAssemble executes all BeforeAssemble hooks in order.
// Returns ActionModify if any hook signaled modification. Errors are logged.
func (p *Pipeline) RunBeforeAssemble(ctx context.Context, hctx *Context) Action {
	hctx.Position = BeforeAssemble
	modified := false
	for _, r := range p.at(BeforeAssemble) {
		action, err := r.hook.Execute(ctx, hctx)
		logError(hctx, err, r.hook)
		if action == ActionModify {
			modified = true
		}
	}
	if modified {
		return ActionModify
	}
	return ActionContinue
}

// RunAfterObserve executes all AfterObserve hooks. Fire-and-forget: errors
// are logged internally and never propagated to the caller.
func (p *Pipeline) RunAfterObserve(ctx context.Context, hctx *Context) {
	hctx.Position = AfterObserve
	for _, r := range p.at(AfterObserve) {
		_, err := r.hook.Execute(ctx, hctx)
		logError(hctx, err, r.hook)
	}
}

func logError(hctx *Context, err error, h Hook) {
	if err == nil || hctx.Logger == nil {
		return
	}
	hctx.Logger.Warn("hook: "+string(hctx.Position)+" error",
		"error", err,
		"priority", h.Priority(),
	)
}
