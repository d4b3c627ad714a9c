package hook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/hook"
	"github.com/flemzord/mnemo/internal/hook/hooktest"
)

func testContext() *hook.Context {
	return &hook.Context{
		Metadata: make(map[string]any),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestPipeline_RunsByPriorityThenRegistration(t *testing.T) {
	t.Parallel()

	p := hook.NewPipeline()
	var order []string
	add := func(name string, prio int) {
		p.Register(&hooktest.MockHook{
			PositionVal: hook.AfterObserve,
			PriorityVal: prio,
			ExecuteFunc: func(context.Context, *hook.Context) (hook.Action, error) {
				order = append(order, name)
				return hook.ActionContinue, nil
			},
		})
	}
	add("ten", 10)
	add("one", 1)
	add("five-a", 5)
	add("five-b", 5)

	p.RunAfterObserve(context.Background(), testContext())

	if want := []string{"one", "five-a", "five-b", "ten"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if p.Len(hook.AfterObserve) != 4 || p.Len(hook.BeforeRecall) != 0 {
		t.Error("Len mismatch")
	}
}

func TestPipeline_BeforeRecallSkipShortCircuits(t *testing.T) {
	t.Parallel()

	p := hook.NewPipeline()
	skipper := hooktest.SkipRecall(0)
	after := &hooktest.MockHook{PositionVal: hook.BeforeRecall, PriorityVal: 1}
	p.Register(after)
	p.Register(skipper)

	hctx := testContext()
	if got := p.RunBeforeRecall(context.Background(), hctx); got != hook.ActionSkip {
		t.Errorf("action = %v, want ActionSkip", got)
	}
	if after.CallCount() != 0 {
		t.Error("hook after the skip should not run")
	}
	if hctx.Position != hook.BeforeRecall {
		t.Errorf("Position = %q", hctx.Position)
	}
}

func TestPipeline_BeforeAssembleModify(t *testing.T) {
	t.Parallel()

	p := hook.NewPipeline()
	p.Register(&hooktest.MockHook{
		PositionVal: hook.BeforeAssemble,
		ExecuteFunc: func(_ context.Context, hctx *hook.Context) (hook.Action, error) {
			*hctx.Components = append(*hctx.Components, ctxengine.Component{Name: "extra"})
			return hook.ActionModify, errors.New("logged, not returned")
		},
	})
	p.Register(&hooktest.MockHook{PositionVal: hook.BeforeAssemble, PriorityVal: 9})

	comps := []ctxengine.Component{{Name: "identity"}}
	hctx := testContext()
	hctx.Components = &comps

	if got := p.RunBeforeAssemble(context.Background(), hctx); got != hook.ActionModify {
		t.Errorf("action = %v, want ActionModify", got)
	}
	if len(comps) != 2 || comps[1].Name != "extra" {
		t.Errorf("components = %+v", comps)
	}
}

func TestPipeline_NilIsEmpty(t *testing.T) {
	t.Parallel()

	var p *hook.Pipeline
	if p.RunBeforeRecall(context.Background(), testContext()) != hook.ActionContinue {
		t.Error("nil pipeline should continue")
	}
	p.RunAfterObserve(context.Background(), testContext())
}
