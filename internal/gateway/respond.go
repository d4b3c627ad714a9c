package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/persona"
	"github.com/flemzord/mnemo/internal/pipeline"
	"github.com/flemzord/mnemo/internal/retrieval"
	"github.com/flemzord/mnemo/internal/security"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, security.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, memory.ErrInvalidRecord),
		errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, retrieval.ErrInvalidRequest),
		errors.Is(err, persona.ErrInvalidScope),
		errors.Is(err, security.ErrJSONTooDeep),
		errors.Is(err, security.ErrInvalidJSON):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrDuplicateRecord):
		return http.StatusConflict
	case errors.Is(err, memory.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server-side failures are logged
// and answered with a generic message.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	if status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge {
		g.audit.Log(security.AuditEvent{
			Type:       security.EventRejected,
			RemoteAddr: r.RemoteAddr,
			Detail:     err.Error(),
			Metadata:   map[string]string{"path": r.URL.Path},
		})
	}
	writeError(w, status, err.Error())
}
