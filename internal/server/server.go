package server

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"pharmatlas/internal/engine"
	"pharmatlas/internal/journal"
	"pharmatlas/internal/upstream"
)

//go:embed guidelines.md
var usageGuidelines string

const (
	DefaultName    = "mini-pharmatlas"
	DefaultVersion = "0.1.0"
)

// Options configures the MCP surface around an engine.
type Options struct {
	Name    string
	Version string

	// DefaultLimit applies to analyze_gene_list calls that omit limit.
	DefaultLimit int

	// Endpoints are described by the endpoint resources.
	KnowledgeGraphEndpoint string
	NCBIEndpoint           string

	// Guards and Journal back the upstream_status tool; both may be empty.
	Guards  []*upstream.Guard
	Journal *journal.Journal

	Logger *zap.Logger
}

// Server exposes the engine as MCP tools and resources.
type Server struct {
	mcpServer    *mcp.Server
	engine       *engine.Engine
	opts         Options
	logger       *zap.Logger
	systemPrompt string
}

func New(eng *engine.Engine, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    opts.Name,
			Version: opts.Version,
		}, &mcp.ServerOptions{
			Instructions: usageGuidelines,
		}),
		engine:       eng,
		opts:         opts,
		logger:       logger,
		systemPrompt: usageGuidelines,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.mcpServer
}

// Run serves a single session on the given transport until it closes or ctx
// is done.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting", zap.String("name", s.opts.Name))
	return s.mcpServer.Run(ctx, transport)
}

// HTTPHandler serves the MCP streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
