// Package mcpserver exposes the tool registry and archive resources over the
// Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/tools"
)

// Resource URIs
const (
	ContextURI = "archive://context"
	StatsURI   = "archive://stats"
)

// Resources is the read-only archive view published as MCP resources
type Resources interface {
	ContextSummary(ctx context.Context) (archive.ContextSummary, error)
	Stats(ctx context.Context) (archive.Stats, error)
}

// Server wraps an MCP server built from a registry
type Server struct {
	mcp    *server.MCPServer
	logger *log.Logger
}

// New registers every tool in the registry, plus the archive resources when res is non-nil
func New(name, version string, registry *tools.Registry, res Resources, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.WithPrefix("mcp")

	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	// 1. Tools
	for _, def := range registry.Definitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", def.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
		s.AddTool(tool, toolHandler(registry, def.Name, logger))
	}

	// 2. Resources
	if res != nil {
		s.AddResource(
			mcp.NewResource(ContextURI, "Archive context",
				mcp.WithResourceDescription("Recent digests and top topics, for grounding a new digest"),
				mcp.WithMIMEType("application/json"),
			),
			jsonResource(ContextURI, func(ctx context.Context) (any, error) { return res.ContextSummary(ctx) }),
		)
		s.AddResource(
			mcp.NewResource(StatsURI, "Archive statistics",
				mcp.WithResourceDescription("Collection sizes and retention limits"),
				mcp.WithMIMEType("application/json"),
			),
			jsonResource(StatsURI, func(ctx context.Context) (any, error) { return res.Stats(ctx) }),
		)
	}

	logger.Debug("MCP server ready", "tools", len(registry.Definitions()))
	return &Server{mcp: s, logger: logger}, nil
}

// MCP returns the underlying server
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves JSON-RPC on in/out until ctx is cancelled or in closes
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))

	s.logger.Info("Serving MCP over stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}

func toolHandler(registry *tools.Registry, name string, logger *log.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := "{}"
		if req.Params.Arguments != nil {
			raw, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
			}
			args = string(raw)
		}

		res, err := registry.Execute(ctx, name, args)
		if err != nil {
			logger.Error("Tool failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.Error != "" {
			return mcp.NewToolResultError(res.Error), nil
		}
		return mcp.NewToolResultText(res.Output), nil
	}
}

func jsonResource(uri string, load func(ctx context.Context) (any, error)) server.ResourceHandlerFunc {
	return func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", uri, err)
		}
		body, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", uri, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(body)},
		}, nil
	}
}

const instructions = `briefing is a content archive for building news digests.
Call context_summary before writing a digest to see recent digests and frequent topics.
Archive source articles with put_item (or ingest_url for a page you have not fetched),
find them later with search_items, and store the finished digest with put_digest.`
