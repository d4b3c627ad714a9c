// Package ollama implements the embedder.ollama module, an embedding client
// for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Embedder{})
}

// Compile-time interface guards.
var (
	_ memory.Embedder   = (*Embedder)(nil)
	_ core.Configurable = (*Embedder)(nil)
	_ core.Provisioner  = (*Embedder)(nil)
	_ core.Validator    = (*Embedder)(nil)
)

const maxResponseSize = 10 * 1024 * 1024

// ErrUnavailable indicates the Ollama server could not be reached or
// failed the request.
var ErrUnavailable = errors.New("ollama: unavailable")

// Config holds the Ollama embedder configuration.
type Config struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`

	// Prefixes are prepended to the text of a channel before embedding.
	Prefixes map[memory.Channel]string `yaml:"prefixes"`
}

// knownDimensions maps common Ollama embedding models to their output size.
var knownDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
	"bge-m3":            1024,
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Dimensions == 0 {
		c.Dimensions = knownDimensions[c.Model]
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
	if c.Prefixes == nil {
		c.Prefixes = map[memory.Channel]string{memory.ChannelAffect: "Emotional tone: "}
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedder.ollama: dimensions must be set for model %q", c.Model))
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("embedder.ollama: invalid timeout %q: %w", c.Timeout, err))
	}
	for ch := range c.Prefixes {
		if !ch.Valid() {
			errs = append(errs, fmt.Errorf("embedder.ollama: unknown channel %q in prefixes", ch))
		}
	}
	return errors.Join(errs...)
}

// Embedder implements memory.Embedder against POST /api/embed.
type Embedder struct {
	config Config
	logger *slog.Logger
	client *http.Client
}

// ModuleInfo implements core.Module.
func (e *Embedder) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedder.ollama",
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
	timeout, err := time.ParseDuration(e.config.Timeout)
	if err != nil {
		timeout = time.Minute
	}
	e.client = &http.Client{Timeout: timeout}

	ctx.RegisterService("memory.embedder", e)
	return nil
}

// Validate implements core.Validator.
func (e *Embedder) Validate() error {
	return e.config.validate()
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Embed requests the embedding of text for channel ch.
func (e *Embedder) Embed(ctx context.Context, text string, ch memory.Channel) (memory.Vector, error) {
	data, err := json.Marshal(embedRequest{Model: e.config.Model, Input: e.config.Prefixes[ch] + text})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: marshal request: %w", memory.ErrEmbedding, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: create request: %w", memory.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Join(memory.ErrEmbedding, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, fmt.Errorf("%w: %w: %w", memory.ErrEmbedding, ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: ollama: %w", memory.ErrEmbedding, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: read response: %w", memory.ErrEmbedding, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %w: %s", memory.ErrEmbedding, ErrUnavailable, msg)
		}
		return nil, fmt.Errorf("%w: ollama: HTTP %d: %s", memory.ErrEmbedding, resp.StatusCode, msg)
	}

	var out embedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: ollama: unmarshal response: %w", memory.ErrEmbedding, err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) != e.config.Dimensions {
		return nil, fmt.Errorf("%w: ollama: unexpected embedding shape for model %s", memory.ErrEmbedding, e.config.Model)
	}
	return memory.Vector(out.Embeddings[0]), nil
}

// Dimensions returns the configured vector length.
func (e *Embedder) Dimensions() int {
	return e.config.Dimensions
}
