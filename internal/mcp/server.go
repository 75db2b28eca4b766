// Package mcp serves read-only catalogue tools over the Model Context
// Protocol. Handlers return text; a handler error becomes an error result
// for the client rather than a protocol failure.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/culturedb/internal/logging"
)

// ToolHandler handles a tool call
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// Server wraps an mcp-go server and keeps the registered handlers so they
// can be called directly.
type Server struct {
	srv      *server.MCPServer
	handlers map[string]ToolHandler
}

// NewServer creates a new MCP server
func NewServer(name, version string) *Server {
	return &Server{
		srv:      server.NewMCPServer(name, version, server.WithToolCapabilities(true)),
		handlers: make(map[string]ToolHandler),
	}
}

// RegisterTool registers a tool handler
func (s *Server) RegisterTool(tool mcp.Tool, handler ToolHandler) {
	s.handlers[tool.Name] = handler
	s.srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		logging.Debug("mcp", "call %s %v", tool.Name, args)
		text, err := handler(ctx, args)
		if err != nil {
			logging.Info("mcp", "%s failed: %v", tool.Name, err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

// Call invokes a registered handler.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	h, ok := s.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return h(ctx, args)
}

// ToolNames lists the registered tools in name order.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.handlers))
	for n := range s.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	logging.Info("mcp", "Serving %d tools on stdio", len(s.handlers))
	return server.ServeStdio(s.srv)
}

// JSON renders v as indented JSON text.
func JSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// String returns a string argument, or "" when absent.
func String(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// RequiredString returns a non-empty string argument.
func RequiredString(args map[string]any, name string) (string, error) {
	if s := String(args, name); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%s is required", name)
}

// Int returns an integer argument, or def when absent. JSON numbers arrive
// as float64; numeric strings are accepted too.
func Int(args map[string]any, name string, def int64) (int64, error) {
	switch v := args[name].(type) {
	case nil:
		return def, nil
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
}
