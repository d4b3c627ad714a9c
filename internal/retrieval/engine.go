package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/telemetry"
)

var (
	// ErrInvalidRequest is returned for requests without scope or strategy.
	ErrInvalidRequest = errors.New("retrieval: invalid request")

	// ErrChannelSearch marks a channel search that failed or timed out. It
	// is logged and the channel is dropped; Retrieve never returns it.
	ErrChannelSearch = errors.New("retrieval: channel search failed")
)

// Request describes one retrieval.
type Request struct {
	ScopeID  string
	Context  memory.QueryContext
	Query    string
	Strategy Strategy
	// K overrides the configured result count when positive.
	K int
}

// ScoredMemory is a hydrated, ranked record.
type ScoredMemory struct {
	Record memory.Record          `json:"record"`
	Score  float64                `json:"score"`
	Ranks  map[memory.Channel]int `json:"ranks,omitempty"`
}

// Result is the ranked, privacy-filtered output of a retrieval.
type Result struct {
	Strategy Info           `json:"strategy"`
	Memories []ScoredMemory `json:"memories"`
	// Partial is set when the aggregate timeout cut the call short.
	Partial bool `json:"partial,omitempty"`
	// FailedChannels lists channels dropped from fusion.
	FailedChannels []memory.Channel `json:"failed_channels,omitempty"`
	// Degraded is set when any store failure was absorbed.
	Degraded bool `json:"degraded,omitempty"`
}

// Engine executes strategies against a memory store.
// It is safe for concurrent use.
type Engine struct {
	store    memory.Store
	embedder memory.Embedder
	cfg      EngineConfig
	cache    *recordCache
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer used for retrieval spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine builds an Engine. The embedder must produce vectors of the
// store's dimensionality.
func NewEngine(store memory.Store, embedder memory.Embedder, cfg EngineConfig, opts ...Option) (*Engine, error) {
	if store == nil || embedder == nil {
		return nil, errors.New("retrieval: store and embedder are required")
	}
	if embedder.Dimensions() != store.Dimensions() {
		return nil, fmt.Errorf("retrieval: embedder produces %d dimensions, store expects %d",
			embedder.Dimensions(), store.Dimensions())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	cache, err := newRecordCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("retrieval: creating record cache: %w", err)
	}

	e := &Engine{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		cache:    cache,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "retrieval.engine")
	return e, nil
}

// Close releases the record cache.
func (e *Engine) Close() {
	e.cache.close()
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Retrieve executes req.Strategy. Channel failures are absorbed; only
// invalid requests, embedding failures and caller cancellation are returned
// as errors.
func (e *Engine) Retrieve(ctx context.Context, req Request) (res Result, err error) {
	if req.ScopeID == "" || req.Strategy == nil {
		return Result{}, fmt.Errorf("%w: scope and strategy are required", ErrInvalidRequest)
	}
	if req.Context.OwnerID == "" || !req.Context.Kind.Valid() {
		return Result{}, fmt.Errorf("%w: query context needs an owner and a known kind", ErrInvalidRequest)
	}
	k := req.K
	if k <= 0 {
		k = e.cfg.K
	}

	name := req.Strategy.Name()
	ctx, span := e.tracer.Start(ctx, "retrieval.Retrieve", trace.WithAttributes(
		attribute.String("mnemo.scope", req.ScopeID),
		attribute.String("mnemo.strategy", name),
		attribute.Int("mnemo.k", k),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res.Partial:
			outcome = "partial"
		case res.Degraded:
			outcome = "degraded"
		}
		span.SetAttributes(attribute.Int("mnemo.results", len(res.Memories)), attribute.String("mnemo.outcome", outcome))
		telemetry.EndSpan(span, err)
		e.metrics.Retrieved(name, outcome, time.Since(start), len(res.Memories))
	}()

	switch s := req.Strategy.(type) {
	case SkipSemantic:
		return Result{Strategy: Describe(s), Memories: []ScoredMemory{}}, nil
	case Temporal:
		return e.recent(ctx, req, k)
	case Affective, General:
		return e.search(ctx, req, k, Channels(s))
	default:
		return Result{}, fmt.Errorf("%w: unsupported strategy %T", ErrInvalidRequest, s)
	}
}

// recent serves the temporal strategy: newest records first, no vectors.
func (e *Engine) recent(ctx context.Context, req Request, k int) (Result, error) {
	res := Result{Strategy: Describe(req.Strategy), Memories: []ScoredMemory{}}

	actx, cancel := context.WithTimeout(ctx, e.cfg.AggregateTimeout)
	defer cancel()

	records, err := e.store.Recent(actx, req.ScopeID, k, memory.ForContext(req.Context))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		e.logger.Warn("recent lookup failed, returning no memories", "scope", req.ScopeID, "error", err)
		res.Degraded = true
		res.Partial = errors.Is(err, context.DeadlineExceeded)
		return res, nil
	}

	for i, rec := range records {
		if !e.admit(req, rec) {
			continue
		}
		e.cache.set(rec)
		res.Memories = append(res.Memories, ScoredMemory{
			Record: rec,
			Score:  1 / float64(e.cfg.RRFConstant+i+1),
		})
	}
	return res, nil
}

type channelOutcome struct {
	channel memory.Channel
	hits    []memory.Hit
	err     error
}

// search embeds the query for every channel, searches them concurrently and
// fuses the survivors.
func (e *Engine) search(ctx context.Context, req Request, k int, channels []memory.Channel) (Result, error) {
	res := Result{Strategy: Describe(req.Strategy), Memories: []ScoredMemory{}}

	actx, cancel := context.WithTimeout(ctx, e.cfg.AggregateTimeout)
	defer cancel()

	vectors, err := e.embedQuery(actx, req.Query, channels)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		case actx.Err() != nil:
			e.logger.Warn("aggregate timeout while embedding query", "scope", req.ScopeID)
			e.metrics.PartialResult()
			res.Partial = true
			return res, nil
		}
		return Result{}, err
	}

	filter := memory.ForContext(req.Context)
	outcomes := make(chan channelOutcome, len(channels))
	for _, ch := range channels {
		go func() {
			cctx, ccancel := context.WithTimeout(actx, e.cfg.ChannelTimeout)
			defer ccancel()
			hits, err := e.store.Search(cctx, req.ScopeID, ch, vectors[ch], k, filter)
			outcomes <- channelOutcome{channel: ch, hits: hits, err: err}
		}()
	}

	pending := make(map[memory.Channel]struct{}, len(channels))
	for _, ch := range channels {
		pending[ch] = struct{}{}
	}

	var results []ChannelResult
collect:
	for len(pending) > 0 {
		select {
		case out := <-outcomes:
			delete(pending, out.channel)
			if out.err != nil {
				e.dropChannel(&res, req.ScopeID, out.channel, out.err)
				continue
			}
			results = append(results, ChannelResult{Channel: out.channel, Hits: e.aboveFloor(out.hits)})
		case <-actx.Done():
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			res.Partial = true
			e.metrics.PartialResult()
			for ch := range pending {
				e.dropChannel(&res, req.ScopeID, ch, actx.Err())
			}
			break collect
		}
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	slices.Sort(res.FailedChannels)

	if len(results) == 0 {
		if len(res.FailedChannels) > 0 {
			e.logger.Warn("all channels failed, returning no memories", "scope", req.ScopeID)
		}
		return res, nil
	}

	fused := Fuse(results, e.cfg.RRFConstant)
	if len(fused) > k {
		fused = fused[:k]
	}
	res.Memories = e.hydrate(ctx, req, fused, &res)

	if _, ok := req.Strategy.(Affective); ok && e.cfg.SignalBoost > 0 {
		e.boost(res.Memories)
	}
	return res, nil
}

// embedQuery embeds the query once per channel, concurrently.
func (e *Engine) embedQuery(ctx context.Context, query string, channels []memory.Channel) (map[memory.Channel]memory.Vector, error) {
	vecs := make([]memory.Vector, len(channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		g.Go(func() error {
			v, err := e.embedder.Embed(gctx, query, ch)
			if err != nil {
				if errors.Is(err, memory.ErrEmbedding) {
					return err
				}
				return fmt.Errorf("%w: %s channel: %w", memory.ErrEmbedding, ch, err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[memory.Channel]memory.Vector, len(channels))
	for i, ch := range channels {
		out[ch] = vecs[i]
	}
	return out, nil
}

func (e *Engine) dropChannel(res *Result, scopeID string, ch memory.Channel, err error) {
	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	e.logger.Warn("channel dropped from fusion",
		"scope", scopeID, "channel", string(ch), "reason", reason,
		"error", fmt.Errorf("%w: %w", ErrChannelSearch, err))
	e.metrics.ChannelFailed(string(ch), reason)
	res.FailedChannels = append(res.FailedChannels, ch)
	res.Degraded = true
}

func (e *Engine) aboveFloor(hits []memory.Hit) []memory.Hit {
	floor := *e.cfg.SimilarityFloor
	kept := hits[:0:0]
	for _, h := range hits {
		if h.Score >= floor {
			kept = append(kept, h)
		}
	}
	return kept
}

// Lookup returns one record of a scope on behalf of access. Records the
// caller may not see are reported as memory.ErrRecordNotFound.
func (e *Engine) Lookup(ctx context.Context, scopeID, id string, access memory.QueryContext) (memory.Record, error) {
	if scopeID == "" || id == "" || access.OwnerID == "" {
		return memory.Record{}, fmt.Errorf("%w: scope, id and owner are required", ErrInvalidRequest)
	}
	rec, ok := e.cache.get(scopeID, id)
	e.metrics.CacheLookup(ok)
	if !ok {
		var err error
		rec, err = e.store.Get(ctx, scopeID, id)
		if err != nil {
			return memory.Record{}, err
		}
		e.cache.set(rec)
	}
	if !e.admit(Request{ScopeID: scopeID, Context: access}, rec) {
		return memory.Record{}, fmt.Errorf("%w: %s", memory.ErrRecordNotFound, id)
	}
	return rec, nil
}

// hydrate loads the records behind fused hits, preserving fused order.
func (e *Engine) hydrate(ctx context.Context, req Request, fused []Fused, res *Result) []ScoredMemory {
	hctx, cancel := context.WithTimeout(ctx, e.cfg.ChannelTimeout)
	defer cancel()

	out := make([]ScoredMemory, 0, len(fused))
	for _, f := range fused {
		rec, ok := e.cache.get(req.ScopeID, f.ID)
		e.metrics.CacheLookup(ok)
		if !ok {
			var err error
			rec, err = e.store.Get(hctx, req.ScopeID, f.ID)
			if err != nil {
				e.logger.Warn("hydration failed, skipping record", "scope", req.ScopeID, "id", f.ID, "error", err)
				res.Degraded = true
				continue
			}
			e.cache.set(rec)
		}
		if !e.admit(req, rec) {
			continue
		}
		out = append(out, ScoredMemory{Record: rec, Score: f.Score, Ranks: f.Ranks})
	}
	return out
}

// admit is the last containment check before a record leaves the engine.
// The store filter already applied visibility; this guards against backends
// that filter loosely and against half-written conversation pairs.
func (e *Engine) admit(req Request, rec memory.Record) bool {
	if rec.ScopeID != req.ScopeID {
		e.logger.Error("store returned a record from another scope", "scope", req.ScopeID, "record_scope", rec.ScopeID, "id", rec.ID)
		return false
	}
	if !rec.Complete() {
		e.logger.Warn("dropping incomplete conversation record", "scope", req.ScopeID, "id", rec.ID)
		return false
	}
	return req.Context.CanSee(rec)
}

func (e *Engine) boost(ms []ScoredMemory) {
	for i := range ms {
		s := ms[i].Record.Signals
		ms[i].Score += e.cfg.SignalBoost * s.Intensity * s.Confidence
	}
	slices.SortStableFunc(ms, func(a, b ScoredMemory) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if a.Record.ID < b.Record.ID {
			return -1
		}
		if a.Record.ID > b.Record.ID {
			return 1
		}
		return 0
	})
}
