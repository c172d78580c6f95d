// Package mcpserver exposes the memory subsystem as MCP tools.
//
// Every tool is a struct holding its dependencies, a Definition that
// returns the mcp.Tool schema and a Handle that serves the call. Failures
// are reported as tool errors so the calling model can react to them.
package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskmem/internal/core"
)

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// floatArg returns nil when the argument is absent.
func floatArg(req mcp.CallToolRequest, key string) *float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

func boolArg(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// listArg accepts a comma separated string or a JSON array of strings.
func listArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func filterArgs(req mcp.CallToolRequest) core.Filter {
	f := core.Filter{
		Categories:     listArg(req, "categories"),
		ConversationID: req.GetString("conversation_id", ""),
	}
	for _, s := range listArg(req, "status") {
		f.Statuses = append(f.Statuses, core.Status(s))
	}
	for _, t := range listArg(req, "content_types") {
		f.ContentTypes = append(f.ContentTypes, core.ContentType(t))
	}
	return f
}

func validateFilter(f core.Filter) error {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return fmt.Errorf("unknown status %q", s)
		}
	}
	for _, t := range f.ContentTypes {
		if !t.Valid() {
			return fmt.Errorf("unknown content type %q", t)
		}
	}
	return nil
}

// messagesArg decodes the messages argument, given either as a JSON array
// or as a string holding one.
func messagesArg(req mcp.CallToolRequest, key string) ([]core.Message, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("'%s' is required", key)
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	var msgs []core.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	for i, m := range msgs {
		if m.ID == "" || m.Role == "" {
			return nil, fmt.Errorf("message %d needs an id and a role", i)
		}
	}
	return msgs, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func formatMemory(b *strings.Builder, i int, m core.Memory) {
	fmt.Fprintf(b, "[%d] %s (%s, importance %.2f)\n    %s\n", i+1, m.ID, m.ContentType, m.Importance, truncate(m.Content, 300))
	if len(m.Categories) > 0 {
		fmt.Fprintf(b, "    categories: %s\n", strings.Join(m.Categories, ", "))
	}
	b.WriteString("\n")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
