package sqlite

import (
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

// whereFilter renders f as SQL conditions over the memories alias m.
func whereFilter(f core.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	statuses := f.EffectiveStatuses()
	conds = append(conds, "m.status IN ("+placeholders(len(statuses))+")")
	for _, s := range statuses {
		args = append(args, string(s))
	}

	if len(f.ContentTypes) > 0 {
		conds = append(conds, "m.content_type IN ("+placeholders(len(f.ContentTypes))+")")
		for _, t := range f.ContentTypes {
			args = append(args, string(t))
		}
	}

	if f.ConversationID != "" {
		conds = append(conds, "m.conversation_id = ?")
		args = append(args, f.ConversationID)
	}

	// any requested category is enough
	if cats := core.NormalizeCategories(f.Categories); len(cats) > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(m.categories) je WHERE je.value IN ("+
			placeholders(len(cats))+"))")
		for _, c := range cats {
			args = append(args, c)
		}
	}

	return strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
