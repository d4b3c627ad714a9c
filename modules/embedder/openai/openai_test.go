package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/security"
)

func newTestEmbedder(t *testing.T, handler http.Handler, mutate ...func(*Config)) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 3}
	for _, m := range mutate {
		m(&cfg)
	}
	cfg.defaults()
	return &Embedder{config: cfg, client: srv.Client()}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func vectorResponse(v ...float32) map[string]any {
	return map[string]any{"data": []map[string]any{{"embedding": v, "index": 0}}}
}

func TestEmbed_Success(t *testing.T) {
	t.Parallel()

	var got embeddingRequest
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q, want /embeddings", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing authorization header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(t, w, vectorResponse(0.1, 0.2, 0.3))
	}))

	vec, err := e.Embed(context.Background(), "I love sushi", memory.ChannelContent)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
	if got.Input != "I love sushi" {
		t.Errorf("input = %q, want unprefixed text", got.Input)
	}
	if got.Model != "text-embedding-3-small" {
		t.Errorf("model = %q", got.Model)
	}
	// 3 differs from the model default, so it must be requested.
	if got.Dimensions != 3 {
		t.Errorf("dimensions = %d, want 3", got.Dimensions)
	}
}

func TestEmbed_AffectPrefix(t *testing.T) {
	t.Parallel()

	var input string
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		input = req.Input
		writeJSON(t, w, vectorResponse(1, 0, 0))
	}))

	if _, err := e.Embed(context.Background(), "I was terrified", memory.ChannelAffect); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !strings.HasPrefix(input, "Emotional tone: ") {
		t.Errorf("input = %q, want affect prefix", input)
	}
}

func TestEmbed_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimit},
		{"server", http.StatusBadGateway, `oops`, ErrUnavailable},
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, errAuth},
		{"wrong size", http.StatusOK, `{"data":[{"embedding":[1,2],"index":0}]}`, memory.ErrEmbedding},
		{"empty", http.StatusOK, `{"data":[]}`, memory.ErrEmbedding},
		{"garbage", http.StatusOK, `not json`, memory.ErrEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := e.Embed(context.Background(), "x", memory.ChannelContent)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, memory.ErrEmbedding) {
				t.Errorf("error = %v, want wrapping ErrEmbedding", err)
			}
		})
	}
}

func TestEmbed_ContextCanceled(t *testing.T) {
	t.Parallel()

	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, vectorResponse(1, 0, 0))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, "x", memory.ChannelContent)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, memory.ErrEmbedding) {
		t.Errorf("error = %v, want canceled and ErrEmbedding", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults with key", Config{APIKey: "k"}, false},
		{"missing key", Config{}, true},
		{"unknown model without dimensions", Config{APIKey: "k", Model: "custom"}, true},
		{"unknown model with dimensions", Config{APIKey: "k", Model: "custom", Dimensions: 768}, false},
		{"bad timeout", Config{APIKey: "k", Timeout: "soon"}, true},
		{"bad prefix channel", Config{APIKey: "k", Prefixes: map[memory.Channel]string{"mood": "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			cfg.defaults()
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_DefaultDimensions(t *testing.T) {
	t.Parallel()
	e, err := New(Config{APIKey: "k", Model: "text-embedding-3-large"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Dimensions() != 3072 {
		t.Errorf("Dimensions() = %d, want 3072", e.Dimensions())
	}
}

func TestProvision_RegistersCredential(t *testing.T) {
	t.Parallel()

	creds := security.NewCredentialStore()
	ctx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	ctx.RegisterService("security.credentials", creds)

	e := &Embedder{config: Config{APIKey: "sk-test", Model: "text-embedding-3-small"}}
	if err := e.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if got, _ := creds.Get("embedder.openai.api_key"); got != "sk-test" {
		t.Errorf("credential = %q, want the api key", got)
	}
	if svc, ok := ctx.GetService("memory.embedder"); !ok || svc != e {
		t.Error("embedder service not registered")
	}
}
