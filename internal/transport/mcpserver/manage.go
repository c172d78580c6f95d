package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/memory"
)

// ─── AddTool ────────────────────────────────────────────────────────────────

// AddTool handles the memory_add MCP tool.
type AddTool struct {
	store MemoryStore
}

func NewAddTool(store MemoryStore) *AddTool {
	return &AddTool{store: store}
}

func (t *AddTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_add",
		mcp.WithDescription("Store a self-contained statement in long-term memory."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The memory text, e.g. 'User prefers tea over coffee'"),
		),
		mcp.WithString("content_type",
			mcp.Description("fact (default), preference, event, skill or document"),
			mcp.Enum("fact", "preference", "event", "skill", "document"),
		),
		mcp.WithString("categories",
			mcp.Description("Comma separated categories"),
		),
		mcp.WithNumber("importance",
			mcp.Description("0.0 to 1.0, default 0.5"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("0.0 to 1.0, how certain the statement is"),
		),
		mcp.WithBoolean("verified",
			mcp.Description("Whether the user confirmed the statement"),
		),
	)
}

func (t *AddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := strings.TrimSpace(req.GetString("content", ""))
	if content == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	nm := memory.NewMemory{
		Content:     content,
		ContentType: core.ContentType(req.GetString("content_type", "")),
		Importance:  floatArg(req, "importance"),
		Confidence:  floatArg(req, "confidence"),
		Categories:  listArg(req, "categories"),
	}
	if v := boolArg(req, "verified"); v != nil {
		nm.Verified = *v
	}

	m, err := t.store.Create(ctx, nm)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store memory: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s stored", m.ID)), nil
}

// ─── GetTool ────────────────────────────────────────────────────────────────

// GetTool handles the memory_get MCP tool.
type GetTool struct {
	store MemoryStore
}

func NewGetTool(store MemoryStore) *GetTool {
	return &GetTool{store: store}
}

func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_get",
		mcp.WithDescription("Fetch one memory with all of its fields."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory ID"),
		),
	)
}

func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	m, err := t.store.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("memory %s not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load memory: %v", err)), nil
	}
	return jsonResult(m)
}

// ─── UpdateTool ─────────────────────────────────────────────────────────────

// UpdateTool handles the memory_update MCP tool.
type UpdateTool struct {
	store MemoryStore
}

func NewUpdateTool(store MemoryStore) *UpdateTool {
	return &UpdateTool{store: store}
}

func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_update",
		mcp.WithDescription("Update a memory by ID. Only provided fields are changed; new content is re-embedded."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory ID"),
		),
		mcp.WithString("content",
			mcp.Description("New content"),
		),
		mcp.WithString("content_type",
			mcp.Description("New content type"),
			mcp.Enum("fact", "preference", "event", "skill", "document"),
		),
		mcp.WithString("status",
			mcp.Description("active, archived or deleted"),
			mcp.Enum("active", "archived", "deleted"),
		),
		mcp.WithString("categories",
			mcp.Description("Comma separated categories, replaces the current set"),
		),
		mcp.WithNumber("importance",
			mcp.Description("0.0 to 1.0"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("0.0 to 1.0"),
		),
		mcp.WithBoolean("verified",
			mcp.Description("Whether the user confirmed the statement"),
		),
	)
}

func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	fields := memory.UpdateFields{
		Importance: floatArg(req, "importance"),
		Confidence: floatArg(req, "confidence"),
		Verified:   boolArg(req, "verified"),
	}
	hasUpdates := fields.Importance != nil || fields.Confidence != nil || fields.Verified != nil

	if v := req.GetString("content", ""); v != "" {
		fields.Content = &v
		hasUpdates = true
	}
	if v := req.GetString("content_type", ""); v != "" {
		ct := core.ContentType(v)
		if !ct.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown content type %q", v)), nil
		}
		fields.ContentType = &ct
		hasUpdates = true
	}
	if v := req.GetString("status", ""); v != "" {
		st := core.Status(v)
		if !st.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", v)), nil
		}
		fields.Status = &st
		hasUpdates = true
	}
	if _, ok := req.GetArguments()["categories"]; ok {
		cats := listArg(req, "categories")
		fields.Categories = &cats
		hasUpdates = true
	}

	if !hasUpdates {
		return mcp.NewToolResultError("nothing to update"), nil
	}

	m, err := t.store.Update(ctx, id, fields)
	if errors.Is(err, core.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("memory %s not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update memory: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s updated", m.ID)), nil
}

// ─── DeleteTool ─────────────────────────────────────────────────────────────

// DeleteTool handles the memory_delete MCP tool.
type DeleteTool struct {
	store MemoryStore
}

func NewDeleteTool(store MemoryStore) *DeleteTool {
	return &DeleteTool{store: store}
}

func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_delete",
		mcp.WithDescription("Soft-delete a memory. It stops appearing in search but stays in the audit trail."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory ID"),
		),
	)
}

func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	err := t.store.Delete(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("memory %s not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete memory: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s deleted", id)), nil
}

// ─── ListTool ───────────────────────────────────────────────────────────────

// ListTool handles the memory_list MCP tool.
type ListTool struct {
	store MemoryStore
}

func NewListTool(store MemoryStore) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_list",
		mcp.WithDescription("List memories newest first."),
		mcp.WithString("categories",
			mcp.Description("Comma separated categories; a memory must carry at least one"),
		),
		mcp.WithString("content_types",
			mcp.Description("Comma separated content types"),
		),
		mcp.WithString("status",
			mcp.Description("Comma separated statuses: active (default), archived, deleted"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Only memories extracted from this conversation"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Page size (default: 50, max: 500)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of memories to skip"),
		),
	)
}

func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := filterArgs(req)
	if err := validateFilter(filter); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	page := core.Page{Limit: intArg(req, "limit", 0), Offset: intArg(req, "offset", 0)}
	memories, err := t.store.List(ctx, filter, page)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list memories: %v", err)), nil
	}

	if len(memories) == 0 {
		return mcp.NewToolResultText("No memories stored yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d memories:\n\n", len(memories))
	for i, m := range memories {
		formatMemory(&b, i, m)
	}
	return mcp.NewToolResultText(strings.TrimSpace(b.String())), nil
}
