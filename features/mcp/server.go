package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"quill/internal/middleware"
	"quill/internal/retrieval"
)

const (
	serverName    = "quill"
	serverVersion = "1.0.0"
)

var ErrEmptyQuery = errors.New("query must not be empty")

type Retriever interface {
	LibraryContext(ctx context.Context, query string) (*retrieval.LibraryAnswer, error)
	SearchContext(ctx context.Context, query string) (*retrieval.SearchContext, error)
}

// Server exposes the retrieval paths as MCP tools.
type Server struct {
	retriever Retriever
	server    *mcp.Server
}

func NewServer(r Retriever) *Server {
	s := &Server{
		retriever: r,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}
	s.registerTools()
	return s
}

// Handler serves the tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// withCorrelation keeps the HTTP request id when the transport carried it
// through, otherwise starts a new one for the tool call.
func withCorrelation(ctx context.Context) context.Context {
	if middleware.GetCorrelationID(ctx) != "unknown" {
		return ctx
	}
	return middleware.WithCorrelationID(ctx, middleware.NewCorrelationID())
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func logToolCall(ctx context.Context, tool, query string, err error) {
	if err != nil {
		slog.WarnContext(ctx, "tool call failed", "tool", tool, "query", query, "error", err)
		return
	}
	slog.InfoContext(ctx, "tool call completed", "tool", tool, "query", query)
}
