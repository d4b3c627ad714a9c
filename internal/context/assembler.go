package ctxengine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/mnemo/internal/telemetry"
)

// ErrConfiguration indicates that the required components cannot fit the
// budget even after truncation. The over-budget result is still returned.
var ErrConfiguration = errors.New("ctxengine: required components exceed budget")

// AssemblyRequest contains the inputs for context assembly.
type AssemblyRequest struct {
	Components []Component
	// Budget overrides the configured budget when positive.
	Budget int
}

// Assembler packs components into a token budget. It holds no per-call
// state and is safe for concurrent use.
type Assembler struct {
	estimator TokenEstimator
	config    Config
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithLogger sets the assembler logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// WithTracer sets the tracer used for assembly spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assembler) { a.tracer = t }
}

// WithEstimator replaces the default CharEstimator.
func WithEstimator(e TokenEstimator) Option {
	return func(a *Assembler) { a.estimator = e }
}

// NewAssembler creates an Assembler.
func NewAssembler(cfg Config, opts ...Option) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ctxengine: invalid config: %w", err)
	}
	cfg = cfg.withDefaults()
	a := &Assembler{
		estimator: NewCharEstimator(cfg.CharsPerToken),
		config:    cfg,
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "ctxengine.assembler")
	return a, nil
}

// Config returns the effective configuration.
func (a *Assembler) Config() Config {
	return a.config
}

// Estimator returns the estimator used for components without a size.
func (a *Assembler) Estimator() TokenEstimator {
	return a.estimator
}

// Assemble packs req.Components into the budget.
//
// The assembly process:
//  1. Size every component and split required from optional
//  2. Truncate required components, least important first, until they fit
//  3. Add optional components by priority, whole or not at all
//  4. Order the survivors by priority and report metrics
//
// When the required set cannot be reduced below the budget, the result
// holds the required set flagged OverBudget and the error wraps
// ErrConfiguration.
func (a *Assembler) Assemble(ctx context.Context, req AssemblyRequest) (res Result, err error) {
	budget := req.Budget
	if budget <= 0 {
		budget = a.config.Budget
	}

	_, span := a.tracer.Start(ctx, "ctxengine.Assemble", trace.WithAttributes(
		attribute.Int("mnemo.budget", budget),
		attribute.Int("mnemo.components", len(req.Components)),
	))
	defer func() {
		outcome := "ok"
		switch {
		case res.Metrics.OverBudget:
			outcome = "over_budget"
		case res.Metrics.Truncated:
			outcome = "truncated"
		}
		span.SetAttributes(
			attribute.Int("mnemo.tokens", res.Metrics.TotalTokens),
			attribute.String("mnemo.outcome", outcome),
		)
		telemetry.EndSpan(span, err)
		a.metrics.Assembled(outcome, res.Metrics.TotalTokens)
	}()

	comps := make([]Component, len(req.Components))
	for i, c := range req.Components {
		if c.EstimatedTokens <= 0 {
			c.EstimatedTokens = a.estimator.Estimate(c.Text)
		}
		c.Truncated = false
		comps[i] = c
	}

	var required, optional []int
	for i, c := range comps {
		if c.Required {
			required = append(required, i)
		} else {
			optional = append(optional, i)
		}
	}

	used := 0
	for _, i := range required {
		used += comps[i].EstimatedTokens
	}
	truncated := false
	if used > budget {
		used, truncated = a.truncate(comps, required, used, budget)
	}
	overBudget := used > budget

	included := slices.Clone(required)
	var dropped []string
	slices.SortStableFunc(optional, func(x, y int) int {
		return cmp.Compare(comps[x].Priority, comps[y].Priority)
	})
	for _, i := range optional {
		if used+comps[i].EstimatedTokens > budget {
			dropped = append(dropped, comps[i].Name)
			continue
		}
		used += comps[i].EstimatedTokens
		included = append(included, i)
	}

	// Input order breaks priority ties.
	slices.Sort(included)
	slices.SortStableFunc(included, func(x, y int) int {
		return cmp.Compare(comps[x].Priority, comps[y].Priority)
	})

	res.Components = make([]Component, 0, len(included))
	for _, i := range included {
		res.Components = append(res.Components, comps[i])
	}
	res.Metrics = Metrics{
		Budget:             budget,
		TotalTokens:        used,
		ComponentsIncluded: len(included),
		ComponentsDropped:  len(dropped),
		Truncated:          truncated,
		OverBudget:         overBudget,
		Dropped:            dropped,
	}

	if overBudget {
		a.logger.Warn("required components exceed budget after truncation",
			"budget", budget, "tokens", used, "required", len(required))
		return res, fmt.Errorf("%w: %d required tokens, budget %d", ErrConfiguration, used, budget)
	}
	if len(dropped) > 0 {
		a.logger.Debug("optional components dropped", "dropped", dropped, "budget", budget)
	}
	return res, nil
}

// truncate cuts required components in place, least important first
// (highest priority number, then name), one round at a time, until the
// set fits or nothing can shrink further. It returns the new total.
func (a *Assembler) truncate(comps []Component, required []int, used, budget int) (int, bool) {
	order := slices.Clone(required)
	slices.SortStableFunc(order, func(x, y int) int {
		if c := cmp.Compare(comps[y].Priority, comps[x].Priority); c != 0 {
			return c
		}
		return cmp.Compare(comps[x].Name, comps[y].Name)
	})

	cuts := make([]*cut, len(order))
	for i, idx := range order {
		cuts[i] = newCut(idx, comps[idx])
	}

	changed := false
	for used > budget {
		progressed := false
		for _, c := range cuts {
			before := c.tokens
			if c.shrink(a.config) {
				used -= before - c.tokens
				progressed = true
				break
			}
		}
		if !progressed {
			break
		}
		changed = true
	}

	for _, c := range cuts {
		if c.level == 0 {
			continue
		}
		comps[c.index].Text = c.text
		comps[c.index].EstimatedTokens = c.tokens
		comps[c.index].Truncated = true
	}
	return used, changed
}
