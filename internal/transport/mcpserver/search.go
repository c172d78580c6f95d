package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// SearchTool handles the memory_search MCP tool.
type SearchTool struct {
	searcher Searcher
}

func NewSearchTool(searcher Searcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription(
			"Search long-term memory with combined semantic and keyword ranking. "+
				"Use it before answering questions about the user, their preferences or past decisions.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query or keywords"),
		),
		mcp.WithString("categories",
			mcp.Description("Comma separated categories; a memory must carry at least one"),
		),
		mcp.WithString("content_types",
			mcp.Description("Comma separated content types: fact, preference, event, skill, document"),
		),
		mcp.WithString("status",
			mcp.Description("Comma separated statuses: active (default), archived"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 100)"),
		),
	)
}

func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	filter := filterArgs(req)
	if err := validateFilter(filter); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hits, err := t.searcher.Search(ctx, query, filter, intArg(req, "limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(hits) == 0 {
		return mcp.NewToolResultText("No memories found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(hits))
	for i, h := range hits {
		formatMemory(&b, i, h.Memory)
	}
	return mcp.NewToolResultText(strings.TrimSpace(b.String())), nil
}
