package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RecallArgument defines recall_history parameters.
type RecallArgument struct {
	Query string `json:"query" jsonschema_description:"Text to find related past requests for"`
}

// RecallHandler handles the recall_history tool.
type RecallHandler struct {
	history HistorySearcher
}

// NewRecallHandler creates a new recall handler.
func NewRecallHandler(history HistorySearcher) *RecallHandler {
	return &RecallHandler{history: history}
}

// Handle searches past user requests.
func (h *RecallHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RecallArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	matches, err := h.history.Related(ctx, args.Query)
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}
	if len(matches) == 0 {
		return textResult(fmt.Sprintf("No past requests related to: %s", args.Query)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d related request(s) for: %s\n\n", len(matches), args.Query)
	for _, m := range matches {
		fmt.Fprintf(&sb, "- #%d %s (score: %.2f)\n", m.Position, m.Content, m.Score)
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *RecallHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "recall_history",
		Description: "Find earlier user requests related to a query",
	}
}

// RegisterRecallTool registers the recall_history tool with an MCP server.
func RegisterRecallTool(server *mcp.Server, history HistorySearcher) {
	handler := NewRecallHandler(history)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
