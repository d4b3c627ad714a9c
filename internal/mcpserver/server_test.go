package mcpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/mnemo/internal/affect"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/mcpserver"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/pipeline"
	"github.com/flemzord/mnemo/internal/retrieval"
)

const testDim = 1024

func newServer(t *testing.T) *mcpserver.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewInMemoryStore(testDim)
	emb := memory.NewHashEmbedder(testDim)
	scorer := affect.NewLexicon(nil)

	engine, err := retrieval.NewEngine(store, emb, retrieval.EngineConfig{}, retrieval.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(engine.Close)
	assembler, err := ctxengine.NewAssembler(ctxengine.Config{}, ctxengine.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
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
		t.Fatal(err)
	}
	return mcpserver.New(p, "test", logger)
}

// rpcReply is the subset of a JSON-RPC reply the tests inspect.
type rpcReply struct {
	Result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func rpc(t *testing.T, s *mcpserver.Server, method string, params any) rpcReply {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	if err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(s.MCP().HandleMessage(context.Background(), msg))
	if err != nil {
		t.Fatal(err)
	}
	var reply rpcReply
	if err := json.Unmarshal(out, &reply); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if reply.Error != nil {
		t.Fatalf("%s: rpc error %s", method, reply.Error.Message)
	}
	return reply
}

func callTool(t *testing.T, s *mcpserver.Server, name string, args map[string]any) (string, bool) {
	t.Helper()
	reply := rpc(t, s, "tools/call", map[string]any{"name": name, "arguments": args})
	if len(reply.Result.Content) == 0 {
		t.Fatalf("%s: empty content", name)
	}
	return reply.Result.Content[0].Text, reply.Result.IsError
}

func TestServer_ListsTools(t *testing.T) {
	t.Parallel()

	reply := rpc(t, newServer(t), "tools/list", map[string]any{})
	var names []string
	for _, tool := range reply.Result.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{mcpserver.ToolRemember, mcpserver.ToolObserve, mcpserver.ToolRecall, mcpserver.ToolAssembleContext} {
		if !slices.Contains(names, want) {
			t.Errorf("tools = %v, missing %s", names, want)
		}
	}
}

func TestServer_RememberAndAssemble(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	scope := map[string]any{"scope_id": "aria", "owner_id": "u1"}
	with := func(extra map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range scope {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	text, isErr := callTool(t, s, mcpserver.ToolObserve, with(map[string]any{
		"user_text": "I love sushi", "agent_text": "Salmon rolls are great!", "channel_id": "lobby",
	}))
	if isErr {
		t.Fatalf("observe failed: %s", text)
	}

	text, isErr = callTool(t, s, mcpserver.ToolRemember, with(map[string]any{
		"text": "user has $1M estate", "visibility": "private_direct",
	}))
	if isErr {
		t.Fatalf("remember failed: %s", text)
	}
	var rec memory.Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil || rec.ID == "" {
		t.Fatalf("remember result = %q, %v", text, err)
	}

	text, isErr = callTool(t, s, mcpserver.ToolRecall, with(map[string]any{
		"context": "public_channel", "channel_id": "lobby", "query": "do you remember what I said about sushi",
	}))
	if isErr {
		t.Fatalf("recall failed: %s", text)
	}
	var res retrieval.Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("recall result: %v", err)
	}
	if len(res.Memories) == 0 || res.Memories[0].Record.TextPrimary != "I love sushi" {
		t.Errorf("recall memories = %+v", res.Memories)
	}

	text, isErr = callTool(t, s, mcpserver.ToolAssembleContext, with(map[string]any{
		"context": "public_channel", "channel_id": "lobby", "query": "do you remember my estate",
	}))
	if isErr {
		t.Fatalf("assemble failed: %s", text)
	}
	if strings.Contains(text, "$1M") {
		t.Error("private fact leaked into a public context")
	}

	text, _ = callTool(t, s, mcpserver.ToolAssembleContext, with(map[string]any{
		"context": "direct", "query": "do you remember my estate",
	}))
	if !strings.Contains(text, "user has $1M estate") {
		t.Errorf("direct context = %q, want the fact", text)
	}
}

func TestServer_ToolErrors(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing text", mcpserver.ToolRemember, map[string]any{"scope_id": "aria", "owner_id": "u1", "visibility": "public_channel"}},
		{"half exchange", mcpserver.ToolObserve, map[string]any{"scope_id": "aria", "owner_id": "u1", "user_text": "hi"}},
		{"bad context", mcpserver.ToolRecall, map[string]any{"scope_id": "aria", "owner_id": "u1", "context": "telepathy"}},
		{"bad strategy", mcpserver.ToolAssembleContext, map[string]any{"scope_id": "aria", "owner_id": "u1", "strategy": "psychic"}},
		{"missing owner", mcpserver.ToolRecall, map[string]any{"scope_id": "aria", "query": "hi"}},
		{"wrong argument type", mcpserver.ToolRecall, map[string]any{"scope_id": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text, isErr := callTool(t, s, tt.tool, tt.args)
			if !isErr {
				t.Errorf("expected a tool error, got %q", text)
			}
		})
	}
}
