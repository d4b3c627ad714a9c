package gateway

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout bounds the module checks run by GET /health.
const healthTimeout = 2 * time.Second

// HealthReporter runs module health checks. *core.App implements it.
type HealthReporter interface {
	Health(ctx context.Context) map[string]error
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Uptime string            `json:"uptime"`
	Engine bool              `json:"engine"`
	Failed map[string]string `json:"failed,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the memory engine is bound and every module check
// passes, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Engine: g.pipeline != nil,
		}
		if !g.startedAt.IsZero() {
			resp.Uptime = time.Since(g.startedAt).Truncate(time.Second).String()
		}
		if g.health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			for id, err := range g.health.Health(ctx) {
				if resp.Failed == nil {
					resp.Failed = make(map[string]string)
				}
				resp.Failed[id] = err.Error()
			}
			cancel()
		}

		status := http.StatusOK
		if !resp.Engine || len(resp.Failed) > 0 {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
