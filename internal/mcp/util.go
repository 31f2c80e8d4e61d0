package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/tools"
)

// resultToMCP converts a tools.Result into the wire result. Error details
// pass through a whitelist so that host paths, credentials and other
// internals never reach the client.
func resultToMCP(result tools.Result, logger log.Logger) *mcp.CallToolResult {
	if result.Status == tools.StatusError {
		errorText := fmt.Sprintf("[%s] %s", result.Error.Code, result.Error.Message)
		if sanitized := sanitizeDetails(result.Error.Details); len(sanitized) > 0 {
			if b, err := json.Marshal(sanitized); err == nil {
				errorText += "\nDetails: " + string(b)
			}
		}
		logger.Debug("tool error", "code", result.Error.Code, "message", result.Error.Message)

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: errorText}},
			IsError: true,
		}
	}

	return dataToMCP(result.Data)
}

// dataToMCP renders success data as one JSON text block; clients parse it.
func dataToMCP(data any) *mcp.CallToolResult {
	if data == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: ""}},
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "marshal error"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// detailWhitelist is the set of error detail fields safe to expose.
var detailWhitelist = map[string]bool{
	"step": true,
}

func sanitizeDetails(details map[string]any) map[string]any {
	safe := make(map[string]any, len(details))
	for key, val := range details {
		if detailWhitelist[key] {
			safe[key] = val
		}
	}
	return safe
}
