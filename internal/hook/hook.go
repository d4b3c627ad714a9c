// Package hook provides lifecycle hooks for the recall and observe paths.
// Hooks intercept at three positions: before retrieval, before assembly,
// and after an exchange is stored. This enables audit logging, recall
// suppression and component rewriting.
package hook

import (
	"context"
	"log/slog"

	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/retrieval"
)

// Position identifies where in the pipeline a hook executes.
type Position string

const (
	// BeforeRecall runs after classification, before retrieval.
	// Hooks here can suppress semantic retrieval.
	BeforeRecall Position = "before_recall"

	// BeforeAssemble runs after retrieval, before budgeting.
	// Hooks here can rewrite the component list.
	BeforeAssemble Position = "before_assemble"

	// AfterObserve runs after an exchange and its facts are stored.
	// Hooks here are fire-and-forget (errors are logged, never propagated).
	AfterObserve Position = "after_observe"
)

// Action signals the pipeline what to do after a hook executes.
type Action int

const (
	// ActionContinue tells the pipeline to proceed normally.
	ActionContinue Action = iota

	// ActionSkip tells the pipeline to skip semantic retrieval.
	// Only valid for BeforeRecall hooks.
	ActionSkip

	// ActionModify signals that the hook mutated Components.
	// Only meaningful for BeforeAssemble hooks.
	ActionModify
)

// Context carries data available to hooks. One Context is shared by the
// hooks of a single recall or observe call.
type Context struct {
	Position Position
	ScopeID  string
	Access   memory.QueryContext
	Query    string

	// Decision is set for BeforeRecall and BeforeAssemble.
	Decision *retrieval.Decision

	// Components is set for BeforeAssemble. Hooks may edit it in place.
	Components *[]ctxengine.Component

	// Exchange and Records are set for AfterObserve. Records holds the
	// conversation record first, then any extracted facts.
	Exchange *memory.Exchange
	Records  []memory.Record

	// Metadata is shared across positions of one call.
	Metadata map[string]any

	Logger *slog.Logger
}

// Hook is the extension point interface for pipeline interception.
type Hook interface {
	// Position returns where this hook should execute.
	Position() Position

	// Priority determines execution order within a position.
	// Lower values run first.
	Priority() int

	// Execute runs the hook logic. The returned Action tells the
	// pipeline how to proceed.
	Execute(ctx context.Context, hctx *Context) (Action, error)
}
