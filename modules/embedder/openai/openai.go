// Package openai implements the embedder.openai module, an embedding client
// for the OpenAI /embeddings API and compatible servers.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Embedder{})
}

// Compile-time interface guards.
var (
	_ memory.Embedder   = (*Embedder)(nil)
	_ core.Module       = (*Embedder)(nil)
	_ core.Configurable = (*Embedder)(nil)
	_ core.Provisioner  = (*Embedder)(nil)
	_ core.Validator    = (*Embedder)(nil)
)

// maxResponseSize is the maximum response body size (10 MB).
const maxResponseSize = 10 * 1024 * 1024

// Embedder implements memory.Embedder over HTTP.
type Embedder struct {
	config Config
	logger *slog.Logger
	client *http.Client
}

// New returns a ready-to-use embedder. Intended for callers outside the
// module system.
func New(cfg Config) (*Embedder, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Embedder{
		config: cfg,
		logger: slog.Default(),
		client: &http.Client{Timeout: cfg.parsedTimeout()},
	}, nil
}

// ModuleInfo implements core.Module.
func (e *Embedder) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedder.openai",
		New: func() core.Module { return &Embedder{} },
	}
}

// Configure implements core.Configurable.
func (e *Embedder) Configure(node *yaml.Node) error {
	if err := node.Decode(&e.config); err != nil {
		return err
	}
	e.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (e *Embedder) Provision(ctx *core.AppContext) error {
	e.config.defaults()
	e.logger = ctx.Logger
	e.client = &http.Client{Timeout: e.config.parsedTimeout()}

	if creds, ok := core.ServiceAs[*security.CredentialStore](ctx, "security.credentials"); ok && e.config.APIKey != "" {
		creds.Set("embedder.openai.api_key", e.config.APIKey)
	}
	ctx.RegisterService("memory.embedder", e)
	return nil
}

// Validate implements core.Validator.
func (e *Embedder) Validate() error {
	return e.config.validate()
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed requests the embedding of text for channel ch.
func (e *Embedder) Embed(ctx context.Context, text string, ch memory.Channel) (memory.Vector, error) {
	req := embeddingRequest{
		Model: e.config.Model,
		Input: e.config.Prefixes[ch] + text,
	}
	if _, known := knownDimensions[e.config.Model]; !known || e.config.Dimensions != knownDimensions[e.config.Model] {
		req.Dimensions = e.config.Dimensions
	}

	body, status, err := e.doPost(ctx, "/embeddings", req)
	if err != nil {
		return nil, err
	}
	if httpErr := mapHTTPError(status, body); httpErr != nil {
		return nil, httpErr
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: openai: unmarshal response: %w", memory.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: openai: empty embedding response", memory.ErrEmbedding)
	}
	vec := memory.Vector(resp.Data[0].Embedding)
	if len(vec) != e.config.Dimensions {
		return nil, fmt.Errorf("%w: openai: got %d dimensions, want %d", memory.ErrEmbedding, len(vec), e.config.Dimensions)
	}
	return vec, nil
}

// Dimensions returns the configured vector length.
func (e *Embedder) Dimensions() int {
	return e.config.Dimensions
}

// doPost sends an authenticated POST request and returns the response body
// and status code. The body is limited to maxResponseSize bytes.
func (e *Embedder) doPost(ctx context.Context, path string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: openai: marshal request: %w", memory.ErrEmbedding, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: openai: create request: %w", memory.ErrEmbedding, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, 0, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: openai: read response: %w", memory.ErrEmbedding, err)
	}
	return body, resp.StatusCode, nil
}
