package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mr-pickles/internal/domain"
)

// ApplyArgument defines apply_feature parameters.
type ApplyArgument struct {
	Request string `json:"request" jsonschema_description:"Feature request in plain language"`
	Code    string `json:"code,omitempty" jsonschema_description:"Python code to apply instead of generating it"`
}

// ApplyHandler handles the apply_feature tool.
type ApplyHandler struct {
	service FeatureService
}

// NewApplyHandler creates a new apply handler.
func NewApplyHandler(service FeatureService) *ApplyHandler {
	return &ApplyHandler{service: service}
}

// Handle runs the feature workflow for the request.
func (h *ApplyHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ApplyArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Request) == "" {
		return errorResult("Request cannot be empty"), nil, nil
	}

	record, err := h.service.ApplyFeature(ctx, args.Request, args.Code)
	if err != nil {
		return errorResult(fmt.Sprintf("Feature request failed: %s", err)), nil, nil
	}
	return textResult(formatRecord(record)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ApplyHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "apply_feature",
		Description: "Generate (or take) Python code for a feature request, merge it into the host project and publish it",
	}
}

// RegisterApplyTool registers the apply_feature tool with an MCP server.
func RegisterApplyTool(server *mcp.Server, service FeatureService) {
	handler := NewApplyHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// ListArgument defines list_features parameters.
type ListArgument struct {
	Status string `json:"status,omitempty" jsonschema_description:"Filter by status: pending, completed or failed"`
}

// ListHandler handles the list_features tool.
type ListHandler struct {
	service FeatureService
}

// NewListHandler creates a new list handler.
func NewListHandler(service FeatureService) *ListHandler {
	return &ListHandler{service: service}
}

// Handle lists ledger records.
func (h *ListHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ListArgument) (*mcp.CallToolResult, any, error) {
	status := domain.FeatureStatus(strings.ToLower(strings.TrimSpace(args.Status)))
	if status != "" && !status.Valid() {
		return errorResult(fmt.Sprintf("Unknown status: %s", args.Status)), nil, nil
	}

	records, err := h.service.ListFeatures(status)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to read feature ledger: %s", err)), nil, nil
	}
	if len(records) == 0 {
		return textResult("No feature requests found."), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d feature request(s):\n", len(records))
	for _, r := range records {
		sb.WriteString("\n")
		sb.WriteString(formatRecord(r))
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ListHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_features",
		Description: "List feature requests recorded in the ledger",
	}
}

// RegisterListTool registers the list_features tool with an MCP server.
func RegisterListTool(server *mcp.Server, service FeatureService) {
	handler := NewListHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func formatRecord(r domain.FeatureRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", r.Status, r.Request)
	if r.Name != "" {
		fmt.Fprintf(&sb, "  name: %s\n", r.Name)
	}
	if len(r.Files) > 0 {
		fmt.Fprintf(&sb, "  files: %s\n", strings.Join(r.Files, ", "))
	}
	if r.Branch != "" {
		fmt.Fprintf(&sb, "  branch: %s\n", r.Branch)
	}
	if r.PullRequestURL != "" {
		fmt.Fprintf(&sb, "  pull request: %s\n", r.PullRequestURL)
	}
	if r.Error != "" {
		fmt.Fprintf(&sb, "  error: %s\n", r.Error)
	}
	return sb.String()
}
