// Package tools is the explicit command interface to the archive. Each
// operation is a named tool with a JSON schema; host adapters (MCP, HTTP)
// dispatch to the registry instead of calling the archive directly.
package tools

import "context"

// Result is what a tool hands back to the host. Error is set for failures
// the caller should see; Output is JSON.
type Result struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Tool is one named operation
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args string) (Result, error)
}

// Definition describes a tool to hosts
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
