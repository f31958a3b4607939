// Package mcp exposes the feature workflow as MCP tools.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mr-pickles/internal/domain"
	"github.com/sha1n/mr-pickles/internal/recall"
)

// FeatureService applies feature requests and lists the ledger.
type FeatureService interface {
	// ApplyFeature implements request. A non-empty code is used instead of generating it.
	ApplyFeature(ctx context.Context, request, code string) (domain.FeatureRecord, error)

	// ListFeatures returns ledger records; an empty status returns all of them.
	ListFeatures(status domain.FeatureStatus) ([]domain.FeatureRecord, error)
}

// HistorySearcher finds past requests related to a query.
type HistorySearcher interface {
	Related(ctx context.Context, query string) ([]recall.Match, error)
}

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name     string
	Version  string
	Features FeatureService
	History  HistorySearcher
}

// CreateServer creates the MCP server and registers the tools whose services are set.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Features != nil {
		RegisterApplyTool(s, cfg.Features)
		RegisterListTool(s, cfg.Features)
	}
	if cfg.History != nil {
		RegisterRecallTool(s, cfg.History)
	}

	return s
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
