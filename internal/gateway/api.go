package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/pipeline"
	"github.com/flemzord/mnemo/internal/retrieval"
	"github.com/flemzord/mnemo/internal/security"
)

// recallBody is the JSON body of the retrieve and context endpoints.
type recallBody struct {
	OwnerID   string             `json:"owner_id"`
	Context   memory.ContextKind `json:"context"`
	ChannelID string             `json:"channel_id,omitempty"`
	Query     string             `json:"query"`
	// Strategy forces a strategy by name; empty lets the classifier decide.
	Strategy string           `json:"strategy,omitempty"`
	Channels []memory.Channel `json:"channels,omitempty"`
	Budget   int              `json:"budget,omitempty"`
}

// request converts the body into a pipeline request for scope.
// A missing context kind is treated as a public channel, the most
// restrictive surface.
func (b recallBody) request(scope string) (pipeline.RecallRequest, error) {
	access, err := queryContext(b.OwnerID, string(b.Context), b.ChannelID)
	if err != nil {
		return pipeline.RecallRequest{}, err
	}
	req := pipeline.RecallRequest{ScopeID: scope, Access: access, Query: b.Query, Budget: b.Budget}
	if b.Strategy != "" {
		s, err := retrieval.ParseStrategy(b.Strategy, b.Channels)
		if err != nil {
			return pipeline.RecallRequest{}, fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, err)
		}
		req.Strategy = s
	}
	return req, nil
}

func queryContext(owner, kind, channel string) (memory.QueryContext, error) {
	k := memory.ContextKind(kind)
	if k == "" {
		k = memory.ContextPublicChannel
	}
	if !k.Valid() {
		return memory.QueryContext{}, fmt.Errorf("%w: unknown context %q", pipeline.ErrInvalidRequest, kind)
	}
	return memory.QueryContext{OwnerID: owner, Kind: k, ChannelID: channel}, nil
}

// retrieveResponse is the reply of POST /retrieve.
type retrieveResponse struct {
	Reason string `json:"reason"`
	retrieval.Result
}

// contextResponse is the reply of POST /context.
type contextResponse struct {
	Reason string `json:"reason"`
	pipeline.Recall
}

// decode reads a bounded JSON body into v.
func (g *Gateway) decode(r *http.Request, v any) error {
	data, err := security.ReadBody(r.Body, g.config.MaxBodySize, 0)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", security.ErrInvalidJSON, err)
	}
	return nil
}

// allow applies the per-owner rate limit of kind.
func (g *Gateway) allow(r *http.Request, kind, scope, owner string) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Allow(kind, owner); err != nil {
		g.audit.Log(security.AuditEvent{
			Type:       security.EventRateLimit,
			ScopeID:    scope,
			OwnerID:    owner,
			RemoteAddr: r.RemoteAddr,
			Detail:     kind,
		})
		return err
	}
	return nil
}

// ready reports whether the pipeline is bound, answering 503 otherwise.
func (g *Gateway) ready(w http.ResponseWriter) bool {
	if g.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "memory engine unavailable")
		return false
	}
	return true
}

// handleObserve stores one exchange: POST /api/v1/scopes/{scope}/exchanges.
func (g *Gateway) handleObserve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.ready(w) {
			return
		}
		var ex memory.Exchange
		if err := g.decode(r, &ex); err != nil {
			g.fail(w, r, err)
			return
		}
		ex.ScopeID = chi.URLParam(r, "scope")
		if err := g.allow(r, security.KindWrite, ex.ScopeID, ex.OwnerID); err != nil {
			g.fail(w, r, err)
			return
		}
		obs, err := g.pipeline.Observe(r.Context(), ex)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, obs)
	}
}

// handleRemember stores a fact or preference: POST /api/v1/scopes/{scope}/facts.
func (g *Gateway) handleRemember() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.ready(w) {
			return
		}
		var in memory.FactInput
		if err := g.decode(r, &in); err != nil {
			g.fail(w, r, err)
			return
		}
		in.ScopeID = chi.URLParam(r, "scope")
		if err := g.allow(r, security.KindWrite, in.ScopeID, in.OwnerID); err != nil {
			g.fail(w, r, err)
			return
		}
		rec, err := g.pipeline.Remember(r.Context(), in)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// handleGetMemory returns one record visible to the caller:
// GET /api/v1/scopes/{scope}/memories/{id}?owner_id=&context=&channel_id=.
func (g *Gateway) handleGetMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.ready(w) {
			return
		}
		scope, id := chi.URLParam(r, "scope"), chi.URLParam(r, "id")
		q := r.URL.Query()
		access, err := queryContext(q.Get("owner_id"), q.Get("context"), q.Get("channel_id"))
		if err != nil {
			g.fail(w, r, err)
			return
		}
		if err := g.allow(r, security.KindRead, scope, access.OwnerID); err != nil {
			g.fail(w, r, err)
			return
		}
		rec, err := g.pipeline.Engine().Lookup(r.Context(), scope, id, access)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleRetrieve classifies and retrieves without assembling:
// POST /api/v1/scopes/{scope}/retrieve.
func (g *Gateway) handleRetrieve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.ready(w) {
			return
		}
		req, ok := g.recallRequest(w, r)
		if !ok {
			return
		}
		decision, res, err := g.pipeline.Retrieve(r.Context(), req)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, retrieveResponse{Reason: decision.Reason, Result: res})
	}
}

// handleContext runs the full recall path and returns the assembled
// context: POST /api/v1/scopes/{scope}/context.
func (g *Gateway) handleContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.ready(w) {
			return
		}
		req, ok := g.recallRequest(w, r)
		if !ok {
			return
		}
		out, err := g.pipeline.Recall(r.Context(), req)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, contextResponse{Reason: out.Decision.Reason, Recall: out})
	}
}

func (g *Gateway) recallRequest(w http.ResponseWriter, r *http.Request) (pipeline.RecallRequest, bool) {
	var body recallBody
	if err := g.decode(r, &body); err != nil {
		g.fail(w, r, err)
		return pipeline.RecallRequest{}, false
	}
	scope := chi.URLParam(r, "scope")
	req, err := body.request(scope)
	if err != nil {
		g.fail(w, r, err)
		return pipeline.RecallRequest{}, false
	}
	if err := g.allow(r, security.KindRead, scope, body.OwnerID); err != nil {
		g.fail(w, r, err)
		return pipeline.RecallRequest{}, false
	}
	return req, true
}
