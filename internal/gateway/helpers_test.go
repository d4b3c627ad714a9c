package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/mnemo/internal/affect"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/pipeline"
	"github.com/flemzord/mnemo/internal/retrieval"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/telemetry"
)

const testDim = 1024

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestPipeline builds a pipeline over in-memory stores.
func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	logger := quietLogger()
	store := memory.NewInMemoryStore(testDim)
	emb := memory.NewHashEmbedder(testDim)
	scorer := affect.NewLexicon(nil)

	engine, err := retrieval.NewEngine(store, emb, retrieval.EngineConfig{}, retrieval.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(engine.Close)
	assembler, err := ctxengine.NewAssembler(ctxengine.Config{}, ctxengine.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	p, err := pipeline.New(pipeline.Config{
		Classifier: retrieval.NewClassifier(retrieval.ClassifierConfig{}, scorer, logger),
		Engine:     engine,
		Assembler:  assembler,
		Writer:     memory.NewWriter(store, emb, scorer, memory.WriterConfig{}, logger),
		History:    memory.NewInMemoryHistoryStore(),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

// newAPIServer serves the gateway router over httptest with a bound pipeline.
func newAPIServer(t *testing.T, cfg Config, limiter *security.RateLimiter, audit *security.AuditLogger) (*Gateway, *httptest.Server) {
	t.Helper()
	cfg.defaults()
	g := &Gateway{
		config:   cfg,
		logger:   quietLogger(),
		pipeline: newTestPipeline(t),
		metrics:  telemetry.NewMetrics(),
		limiter:  limiter,
		audit:    audit,
	}
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return g, srv
}

// call sends a JSON request and decodes the JSON reply into out when non-nil.
func call(t *testing.T, method, url string, body, out any, header ...string) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}
