// Package tools defines the MCP tool catalog for the Lightdash gateway.
// Every tool is a dispatch operation plus its MCP surface (schema and
// annotations); execution itself always runs through the dispatcher.
package tools

import "github.com/modelcontextprotocol/go-sdk/mcp"

// boolPtr returns a pointer to a bool value
func boolPtr(b bool) *bool {
	return &b
}

// ReadOnlyAnnotations returns annotations for read-only tools (list, get operations).
// These tools don't modify any state and are safe to call repeatedly.
func ReadOnlyAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:          title,
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false), // a Lightdash project is a bounded system
	}
}

// QueryAnnotations returns annotations for query execution tools. Queries
// read warehouse data but never modify it.
func QueryAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:          title,
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}

// LocalAnnotations returns annotations for tools answered entirely inside
// the gateway without an upstream call.
func LocalAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:          title,
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}
