package retrieval_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/mnemo/internal/affect"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/retrieval"
)

const testDim = 2048

var (
	publicCtx = memory.QueryContext{OwnerID: "u1", Kind: memory.ContextPublicChannel, ChannelID: "lobby"}
	directCtx = memory.QueryContext{OwnerID: "u1", Kind: memory.ContextDirect}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is an engine over an in-memory store populated through a Writer.
type fixture struct {
	store    *memory.InMemoryStore
	embedder *memory.HashEmbedder
	writer   *memory.Writer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewInMemoryStore(testDim)
	emb := memory.NewHashEmbedder(testDim)
	return &fixture{
		store:    store,
		embedder: emb,
		writer:   memory.NewWriter(store, emb, affect.NewLexicon(nil), memory.WriterConfig{}, quietLogger()),
	}
}

func (f *fixture) exchange(t *testing.T, scope, user, agent string, at time.Time) memory.Record {
	t.Helper()
	rec, err := f.writer.RecordExchange(context.Background(), memory.Exchange{
		ScopeID: scope, OwnerID: "u1", UserText: user, AgentText: agent,
		Origin: memory.Visibility{Level: memory.PublicChannel, ChannelID: "lobby"},
		At:     at,
	})
	if err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	return rec
}

func (f *fixture) fact(t *testing.T, scope, text string, vis memory.Visibility) memory.Record {
	t.Helper()
	rec, err := f.writer.RecordFact(context.Background(), memory.FactInput{
		ScopeID: scope, OwnerID: "u1", Text: text, Visibility: vis,
	})
	if err != nil {
		t.Fatalf("RecordFact: %v", err)
	}
	return rec
}

func newEngine(t *testing.T, store memory.Store, emb memory.Embedder, cfg retrieval.EngineConfig) *retrieval.Engine {
	t.Helper()
	e, err := retrieval.NewEngine(store, emb, cfg, retrieval.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func ids(ms []retrieval.ScoredMemory) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Record.ID
	}
	return out
}
