package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/conv"
)

// ─── ExtractTool ────────────────────────────────────────────────────────────

// ExtractTool handles the memory_extract MCP tool.
type ExtractTool struct {
	extractor Extractor
	queue     Submitter
}

func NewExtractTool(extractor Extractor, queue Submitter) *ExtractTool {
	return &ExtractTool{extractor: extractor, queue: queue}
}

func (t *ExtractTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_extract",
		mcp.WithDescription(
			"Mine conversation turns for long-term memories. Messages already processed for the "+
				"conversation are skipped, so the whole history can be sent every time.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Stable conversation identifier"),
		),
		mcp.WithString("messages",
			mcp.Required(),
			mcp.Description(`JSON array of {"id", "role", "content"} objects`),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Run now and report the result instead of queueing (default false)"),
		),
	)
}

func (t *ExtractTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	convID := req.GetString("conversation_id", "")
	if convID == "" {
		return mcp.NewToolResultError("'conversation_id' is required"), nil
	}

	msgs, err := messagesArg(req, "messages")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	wait := boolArg(req, "wait")
	if t.queue != nil && (wait == nil || !*wait) {
		t.queue.Submit(ctx, convID, msgs)
		return mcp.NewToolResultText(fmt.Sprintf("Extraction queued for %d messages", len(msgs))), nil
	}

	created, err := t.extractor.ExtractFromConversation(ctx, convID, msgs)
	if err != nil && len(created) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}
	return extractedResult(created, err), nil
}

// ─── IngestTool ─────────────────────────────────────────────────────────────

// IngestTool handles the memory_ingest MCP tool.
type IngestTool struct {
	extractor Extractor
	fetcher   DocumentFetcher
}

func NewIngestTool(extractor Extractor, fetcher DocumentFetcher) *IngestTool {
	return &IngestTool{extractor: extractor, fetcher: fetcher}
}

func (t *IngestTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_ingest",
		mcp.WithDescription("Extract memories from a document given inline or by URL. Markdown and HTML are converted to text first."),
		mcp.WithString("text",
			mcp.Description("Document body"),
		),
		mcp.WithString("name",
			mcp.Description("File name of the inline document; the extension selects the format"),
		),
		mcp.WithString("url",
			mcp.Description("Fetch the document from this URL instead"),
		),
	)
}

func (t *IngestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := req.GetString("url", "")
	raw := req.GetString("text", "")

	var (
		text string
		err  error
	)
	switch {
	case url != "" && t.fetcher != nil:
		text, err = t.fetcher.FetchText(ctx, url)
	case raw != "":
		text, err = conv.DocumentToText(req.GetString("name", ""), []byte(raw))
	default:
		return mcp.NewToolResultError("either 'text' or 'url' is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read document: %v", err)), nil
	}
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("document is empty"), nil
	}

	created, err := t.extractor.Extract(ctx, text, core.Source{Kind: core.SourceDocument})
	if err != nil && len(created) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}
	return extractedResult(created, err), nil
}

func extractedResult(created []core.Memory, err error) *mcp.CallToolResult {
	if len(created) == 0 {
		return mcp.NewToolResultText("Nothing new worth remembering.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stored %d memories:\n\n", len(created))
	for i, m := range created {
		formatMemory(&b, i, m)
	}
	if err != nil {
		fmt.Fprintf(&b, "Some parts failed: %v\n", err)
	}
	return mcp.NewToolResultText(strings.TrimSpace(b.String()))
}
