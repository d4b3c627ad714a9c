// Package mcpserver exposes the memory engine as Model Context Protocol
// tools so an agent can store and recall memories over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/pipeline"
	"github.com/flemzord/mnemo/internal/retrieval"
)

// Tool names.
const (
	ToolRemember        = "remember"
	ToolObserve         = "observe"
	ToolRecall          = "recall"
	ToolAssembleContext = "assemble_context"
)

// Server wraps an MCP server whose tools run against a pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	mcp      *server.MCPServer
	logger   *slog.Logger
}

// New builds the MCP server and registers every tool.
func New(p *pipeline.Pipeline, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline: p,
		logger:   logger.With("component", "mcpserver"),
		mcp: server.NewMCPServer("mnemo", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Long-term memory for a character. Call assemble_context before answering and observe after."),
		),
	}
	s.mcp.AddTool(rememberTool(), s.handleRemember)
	s.mcp.AddTool(observeTool(), s.handleObserve)
	s.mcp.AddTool(recallTool(), s.handleRecall)
	s.mcp.AddTool(assembleTool(), s.handleAssemble)
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC over in and out until ctx is cancelled or in
// is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

// scopeOptions are the arguments shared by every tool.
func scopeOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("scope_id", mcp.Required(), mcp.Description("Character or agent the memory belongs to")),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Human participant the memory is about")),
	}
}

func accessOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("context",
			mcp.Description("Surface the query comes from (default public_channel)"),
			mcp.Enum(string(memory.ContextDirect), string(memory.ContextPrivateChannel), string(memory.ContextPublicChannel)),
		),
		mcp.WithString("channel_id", mcp.Description("Channel id for channel contexts")),
		mcp.WithString("query", mcp.Description("The current user message")),
		mcp.WithString("strategy",
			mcp.Description("Force a retrieval strategy instead of classifying the query"),
			mcp.Enum("skip_semantic", "temporal", "affective", "general"),
		),
	}
}

func rememberTool() mcp.Tool {
	opts := append(scopeOptions(),
		mcp.WithDescription("Stores a fact or preference about the owner with its privacy level."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The fact, stated in one sentence")),
		mcp.WithString("kind", mcp.Enum(string(memory.KindFact), string(memory.KindPreference))),
		mcp.WithString("visibility", mcp.Required(),
			mcp.Enum(string(memory.PrivateDirect), string(memory.PrivateChannel), string(memory.PublicChannel)),
		),
		mcp.WithString("channel_id", mcp.Description("Channel the fact was learned in")),
	)
	return mcp.NewTool(ToolRemember, opts...)
}

func observeTool() mcp.Tool {
	opts := append(scopeOptions(),
		mcp.WithDescription("Stores one exchange (user message and reply) as a conversation memory."),
		mcp.WithString("user_text", mcp.Required()),
		mcp.WithString("agent_text", mcp.Required()),
		mcp.WithString("visibility",
			mcp.Enum(string(memory.PrivateDirect), string(memory.PrivateChannel), string(memory.PublicChannel)),
		),
		mcp.WithString("channel_id", mcp.Description("Channel the exchange happened in")),
	)
	return mcp.NewTool(ToolObserve, opts...)
}

func recallTool() mcp.Tool {
	opts := append(scopeOptions(), accessOptions()...)
	opts = append(opts,
		mcp.WithDescription("Returns the memories relevant to a query, ranked, as JSON."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	return mcp.NewTool(ToolRecall, opts...)
}

func assembleTool() mcp.Tool {
	opts := append(scopeOptions(), accessOptions()...)
	opts = append(opts,
		mcp.WithDescription("Builds the prompt context (identity, facts, memories, recent dialogue) within a token budget."),
		mcp.WithNumber("budget", mcp.Description("Token budget; default is the configured budget")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	return mcp.NewTool(ToolAssembleContext, opts...)
}

// toolArgs is the union of every tool's arguments.
type toolArgs struct {
	ScopeID    string `json:"scope_id"`
	OwnerID    string `json:"owner_id"`
	Text       string `json:"text"`
	Kind       string `json:"kind"`
	Visibility string `json:"visibility"`
	ChannelID  string `json:"channel_id"`
	UserText   string `json:"user_text"`
	AgentText  string `json:"agent_text"`
	Context    string `json:"context"`
	Query      string `json:"query"`
	Strategy   string `json:"strategy"`
	Budget     int    `json:"budget"`
}

func (a toolArgs) recallRequest() (pipeline.RecallRequest, error) {
	kind := memory.ContextKind(a.Context)
	if kind == "" {
		kind = memory.ContextPublicChannel
	}
	if !kind.Valid() {
		return pipeline.RecallRequest{}, fmt.Errorf("unknown context %q", a.Context)
	}
	req := pipeline.RecallRequest{
		ScopeID: a.ScopeID,
		Access:  memory.QueryContext{OwnerID: a.OwnerID, Kind: kind, ChannelID: a.ChannelID},
		Query:   a.Query,
		Budget:  a.Budget,
	}
	if a.Strategy != "" {
		s, err := retrieval.ParseStrategy(a.Strategy, nil)
		if err != nil {
			return pipeline.RecallRequest{}, err
		}
		req.Strategy = s
	}
	return req, nil
}

func bind(req mcp.CallToolRequest) (toolArgs, *mcp.CallToolResult) {
	var args toolArgs
	if err := req.BindArguments(&args); err != nil {
		return args, mcp.NewToolResultErrorf("invalid arguments: %v", err)
	}
	return args, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports engine failures to the client as tool errors so the
// model can react; only encoding failures are protocol errors.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool call failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) handleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := bind(req)
	if bad != nil {
		return bad, nil
	}
	rec, err := s.pipeline.Remember(ctx, memory.FactInput{
		ScopeID:    args.ScopeID,
		OwnerID:    args.OwnerID,
		Kind:       memory.Kind(args.Kind),
		Text:       args.Text,
		Visibility: memory.Visibility{Level: memory.VisibilityLevel(args.Visibility), ChannelID: args.ChannelID},
	})
	if err != nil {
		return s.toolError(ToolRemember, err), nil
	}
	return jsonResult(rec)
}

func (s *Server) handleObserve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := bind(req)
	if bad != nil {
		return bad, nil
	}
	level := memory.VisibilityLevel(args.Visibility)
	if level == "" {
		level = memory.PublicChannel
	}
	obs, err := s.pipeline.Observe(ctx, memory.Exchange{
		ScopeID:   args.ScopeID,
		OwnerID:   args.OwnerID,
		UserText:  args.UserText,
		AgentText: args.AgentText,
		Origin:    memory.Visibility{Level: level, ChannelID: args.ChannelID},
	})
	if err != nil {
		return s.toolError(ToolObserve, err), nil
	}
	return jsonResult(obs)
}

func (s *Server) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := bind(req)
	if bad != nil {
		return bad, nil
	}
	rr, err := args.recallRequest()
	if err != nil {
		return s.toolError(ToolRecall, err), nil
	}
	_, res, err := s.pipeline.Retrieve(ctx, rr)
	if err != nil {
		return s.toolError(ToolRecall, err), nil
	}
	return jsonResult(res)
}

// handleAssemble returns the assembled context as plain text, ready to be
// placed in a prompt.
func (s *Server) handleAssemble(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := bind(req)
	if bad != nil {
		return bad, nil
	}
	rr, err := args.recallRequest()
	if err != nil {
		return s.toolError(ToolAssembleContext, err), nil
	}
	out, err := s.pipeline.Recall(ctx, rr)
	if err != nil {
		return s.toolError(ToolAssembleContext, err), nil
	}
	if out.Context.Metrics.OverBudget {
		s.logger.Warn("assembled context exceeds budget", "scope", rr.ScopeID, "tokens", out.Context.Metrics.TotalTokens)
	}
	return mcp.NewToolResultText(out.Context.Text()), nil
}
