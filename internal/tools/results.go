package tools

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
)

// NewToolResultJSON marshals a payload into a successful tool result.
func NewToolResultJSON(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// NewToolResultError creates a new tool result with an error message
func NewToolResultError(message string) *mcp.CallToolResult {
	if message == "" {
		message = "An unknown error occurred"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}
}

// NewToolResultFromError renders a structured failure as a tool result. The
// JSON form keeps the kind and retryable flag visible to the caller; a
// suggestion, when present, is appended as guidance.
func NewToolResultFromError(err error) *mcp.CallToolResult {
	structured := apierrors.AsStructured(err)

	text := structured.ToJSON()
	if structured.Suggestion != "" {
		text = fmt.Sprintf("%s\n\nSuggestion: %s", text, structured.Suggestion)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}
