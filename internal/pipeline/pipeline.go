package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/hook"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/persona"
	"github.com/flemzord/mnemo/internal/retrieval"
)

// ErrInvalidRequest is returned for requests without scope or owner.
var ErrInvalidRequest = errors.New("pipeline: invalid request")

// RecallRequest asks for the context to answer Query.
type RecallRequest struct {
	ScopeID string
	Access  memory.QueryContext
	Query   string
	// Budget overrides the assembler budget when positive.
	Budget int
	// Strategy bypasses the classifier when set.
	Strategy retrieval.Strategy
}

// Recall is the outcome of a recall: the classifier decision, the raw
// retrieval and the assembled context.
type Recall struct {
	Decision  retrieval.Decision `json:"-"`
	Retrieval retrieval.Result   `json:"retrieval"`
	Context   ctxengine.Result   `json:"context"`
	// Degraded is set when retrieval failed and the context was built
	// without memories.
	Degraded bool `json:"degraded,omitempty"`
}

// Observation is the outcome of storing an exchange.
type Observation struct {
	Exchange memory.Record   `json:"exchange"`
	Facts    []memory.Record `json:"facts,omitempty"`
}

// Pipeline executes recall and observe calls. It is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a pipeline with the given configuration.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RecentTurns <= 0 {
		cfg.RecentTurns = defaultRecentTurns
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger.With("component", "pipeline")}, nil
}

// Recall runs the read path:
//  1. Load the recent-dialogue window
//  2. Classify the query (unless a strategy is forced)
//  3. Run BeforeRecall hooks
//  4. Retrieve memories, absorbing retrieval failures
//  5. Build identity, guidance, facts, memories and dialogue components
//  6. Run BeforeAssemble hooks and assemble within the budget
//
// An over-budget assembly is logged and returned without error.
func (p *Pipeline) Recall(ctx context.Context, req RecallRequest) (Recall, error) {
	if err := checkRecall(req); err != nil {
		return Recall{}, err
	}
	logger := p.logger.With("scope", req.ScopeID)
	window := p.window(ctx, logger, req)
	decision, hctx := p.decide(ctx, logger, req, window)

	var err error
	out := Recall{Decision: decision}
	out.Retrieval, err = p.cfg.Engine.Retrieve(ctx, retrieval.Request{
		ScopeID:  req.ScopeID,
		Context:  req.Access,
		Query:    req.Query,
		Strategy: decision.Strategy,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, retrieval.ErrInvalidRequest) {
			return Recall{}, err
		}
		logger.Warn("retrieval failed, assembling without memories", "strategy", decision.Strategy.Name(), "error", err)
		out.Retrieval = retrieval.Result{Strategy: retrieval.Describe(decision.Strategy), Memories: []retrieval.ScoredMemory{}}
		out.Degraded = true
	}

	comps := p.components(ctx, logger, req, window, out.Retrieval)
	hctx.Components = &comps
	p.cfg.Hooks.RunBeforeAssemble(ctx, hctx)

	out.Context, err = p.cfg.Assembler.Assemble(ctx, ctxengine.AssemblyRequest{Components: comps, Budget: req.Budget})
	if err != nil {
		if !errors.Is(err, ctxengine.ErrConfiguration) {
			return Recall{}, err
		}
		logger.Error("assembled context exceeds budget", "error", err)
	}

	logger.Debug("recall complete",
		"strategy", decision.Strategy.Name(),
		"reason", decision.Reason,
		"memories", len(out.Retrieval.Memories),
		"tokens", out.Context.Metrics.TotalTokens,
	)
	return out, nil
}

// Retrieve classifies the query and runs retrieval without assembling a
// context. Unlike Recall, retrieval failures are returned.
func (p *Pipeline) Retrieve(ctx context.Context, req RecallRequest) (retrieval.Decision, retrieval.Result, error) {
	if err := checkRecall(req); err != nil {
		return retrieval.Decision{}, retrieval.Result{}, err
	}
	logger := p.logger.With("scope", req.ScopeID)
	decision, _ := p.decide(ctx, logger, req, p.window(ctx, logger, req))
	res, err := p.cfg.Engine.Retrieve(ctx, retrieval.Request{
		ScopeID:  req.ScopeID,
		Context:  req.Access,
		Query:    req.Query,
		Strategy: decision.Strategy,
	})
	return decision, res, err
}

func checkRecall(req RecallRequest) error {
	if err := persona.CheckScope(req.ScopeID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Access.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	return nil
}

func (p *Pipeline) window(ctx context.Context, logger *slog.Logger, req RecallRequest) []memory.Turn {
	window, err := p.cfg.History.Recent(ctx, memory.SessionID(req.ScopeID, req.Access.OwnerID), p.cfg.RecentTurns)
	if err != nil {
		logger.Warn("recent dialogue unavailable", "error", err)
		return nil
	}
	return window
}

// decide picks the strategy: a forced one, else the classifier's, unless a
// BeforeRecall hook suppresses retrieval.
func (p *Pipeline) decide(ctx context.Context, logger *slog.Logger, req RecallRequest, window []memory.Turn) (retrieval.Decision, *hook.Context) {
	decision := retrieval.Decision{Strategy: req.Strategy, Reason: "requested"}
	if req.Strategy == nil {
		decision = p.cfg.Classifier.Classify(ctx, req.Query, window)
	}

	hctx := &hook.Context{
		ScopeID:  req.ScopeID,
		Access:   req.Access,
		Query:    req.Query,
		Decision: &decision,
		Metadata: make(map[string]any),
		Logger:   logger,
	}
	if p.cfg.Hooks.RunBeforeRecall(ctx, hctx) == hook.ActionSkip {
		decision = retrieval.Decision{Strategy: retrieval.SkipSemantic{}, Reason: "suppressed by hook"}
	}
	p.cfg.Metrics.Classified(decision.Strategy.Name())
	return decision, hctx
}

func (p *Pipeline) components(ctx context.Context, logger *slog.Logger, req RecallRequest, window []memory.Turn, res retrieval.Result) []ctxengine.Component {
	identity := persona.DefaultIdentity
	if p.cfg.Identity != nil {
		text, err := p.cfg.Identity.Get(ctx, req.ScopeID)
		if err != nil {
			logger.Warn("identity unavailable, using default", "error", err)
		} else {
			identity = text
		}
	}
	comps := []ctxengine.Component{{
		Name: ComponentIdentity, Priority: PriorityIdentity, Text: identity, Required: true,
	}}

	if p.cfg.Guidance != nil {
		notes, err := p.cfg.Guidance.Get(ctx, req.ScopeID)
		if err != nil {
			logger.Warn("guidance unavailable", "error", err)
		}
		if text := persona.FormatGuidance(persona.Select(notes, req.Query)); text != "" {
			comps = append(comps, ctxengine.Component{Name: ComponentGuidance, Priority: PriorityGuidance, Text: text})
		}
	}

	facts, conversations := splitMemories(res.Memories)
	if text := FormatFacts(facts); text != "" {
		comps = append(comps, ctxengine.Component{Name: ComponentFacts, Priority: PriorityFacts, Text: text})
	}
	if text := FormatConversations(conversations); text != "" {
		comps = append(comps, ctxengine.Component{Name: ComponentMemories, Priority: PriorityMemories, Text: text})
	}

	if len(window) > 0 {
		text := ctxengine.FormatDialogue("", window)
		if p.cfg.Dialogue != nil {
			var err error
			text, err = p.cfg.Dialogue.Render(ctx, window)
			if err != nil {
				logger.Warn("dialogue compaction failed", "error", err)
			}
		}
		comps = append(comps, ctxengine.Component{Name: ComponentDialogue, Priority: PriorityDialogue, Text: text})
	}
	return comps
}

// Observe runs the write path: the exchange is stored as one conversation
// record, appended to the dialogue window, and mined for facts. Storage
// and embedding failures of the exchange are returned; fact extraction and
// history failures are logged.
func (p *Pipeline) Observe(ctx context.Context, ex memory.Exchange) (Observation, error) {
	if err := persona.CheckScope(ex.ScopeID); err != nil {
		return Observation{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	logger := p.logger.With("scope", ex.ScopeID)

	rec, err := p.cfg.Writer.RecordExchange(ctx, ex)
	if err != nil {
		return Observation{}, err
	}
	p.cfg.Metrics.RecordWritten(string(rec.Kind))
	out := Observation{Exchange: rec}

	sid := memory.SessionID(ex.ScopeID, ex.OwnerID)
	if err := p.cfg.History.Append(ctx, sid,
		memory.Turn{Role: memory.RoleUser, Text: ex.UserText, At: rec.CreatedAt},
		memory.Turn{Role: memory.RoleAgent, Text: ex.AgentText, At: rec.CreatedAt},
	); err != nil {
		logger.Warn("appending dialogue window failed", "error", err)
	}

	if p.cfg.Extractor != nil {
		inputs, err := p.cfg.Extractor.Extract(ctx, ex)
		if err != nil {
			logger.Warn("fact extraction failed", "error", err)
		}
		for _, in := range inputs {
			fact, err := p.cfg.Writer.RecordFact(ctx, in)
			if err != nil {
				logger.Warn("storing extracted fact failed", "kind", string(in.Kind), "error", err)
				continue
			}
			p.cfg.Metrics.RecordWritten(string(fact.Kind))
			out.Facts = append(out.Facts, fact)
		}
	}

	records := append([]memory.Record{rec}, out.Facts...)
	p.cfg.Hooks.RunAfterObserve(ctx, &hook.Context{
		ScopeID:  ex.ScopeID,
		Access:   memory.QueryContext{OwnerID: ex.OwnerID},
		Exchange: &ex,
		Records:  records,
		Metadata: make(map[string]any),
		Logger:   logger,
	})
	return out, nil
}

// Remember stores a fact or preference supplied by the caller.
func (p *Pipeline) Remember(ctx context.Context, in memory.FactInput) (memory.Record, error) {
	if err := persona.CheckScope(in.ScopeID); err != nil {
		return memory.Record{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	rec, err := p.cfg.Writer.RecordFact(ctx, in)
	if err != nil {
		return memory.Record{}, err
	}
	p.cfg.Metrics.RecordWritten(string(rec.Kind))
	return rec, nil
}

// Engine exposes the retrieval engine for direct retrieval calls.
func (p *Pipeline) Engine() *retrieval.Engine { return p.cfg.Engine }

// Assembler exposes the context assembler for caller-supplied components.
func (p *Pipeline) Assembler() *ctxengine.Assembler { return p.cfg.Assembler }
