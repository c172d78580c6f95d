package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
)

// RenderMemory formats one memory as a header line with its id and
// metadata followed by the indented content. score is omitted when negative.
func RenderMemory(m core.Memory, score float64) string {
	var meta []string
	meta = append(meta, string(m.ContentType))
	if m.Status != core.StatusActive {
		meta = append(meta, string(m.Status))
	}
	meta = append(meta, fmt.Sprintf("importance %.2f", m.Importance))
	if m.Confidence != nil {
		meta = append(meta, fmt.Sprintf("confidence %.2f", *m.Confidence))
	}
	if score >= 0 {
		meta = append(meta, fmt.Sprintf("score %.4f", score))
	}

	var b strings.Builder
	b.WriteString(IDStyle.Render(m.ID))
	b.WriteString(" ")
	b.WriteString(DescStyle.Render(strings.Join(meta, " · ")))
	b.WriteString("\n")
	b.WriteString(ContentStyle.Render(m.Content))
	if len(m.Categories) > 0 {
		b.WriteString("\n")
		b.WriteString(ContentStyle.Render(DescStyle.Render("#" + strings.Join(m.Categories, " #"))))
	}
	return b.String()
}

// RenderDetails lists every field of a memory, one per line.
func RenderDetails(m core.Memory) string {
	rows := [][2]string{
		{"id", IDStyle.Render(m.ID)},
		{"content", m.Content},
		{"type", string(m.ContentType)},
		{"status", string(m.Status)},
		{"importance", fmt.Sprintf("%.2f", m.Importance)},
		{"verified", fmt.Sprintf("%t", m.Verified)},
		{"source", string(m.Source.Kind)},
		{"model", m.EmbeddingModel},
		{"created", m.CreatedAt.Local().Format(time.DateTime)},
		{"updated", m.UpdatedAt.Local().Format(time.DateTime)},
		{"accessed", fmt.Sprintf("%d times", m.AccessCount)},
	}
	if m.Confidence != nil {
		rows = append(rows, [2]string{"confidence", fmt.Sprintf("%.2f", *m.Confidence)})
	}
	if m.Source.ConversationID != "" {
		rows = append(rows, [2]string{"conversation", m.Source.ConversationID})
	}
	if len(m.Source.MessageIDs) > 0 {
		rows = append(rows, [2]string{"messages", strings.Join(m.Source.MessageIDs, ", ")})
	}
	if len(m.Categories) > 0 {
		rows = append(rows, [2]string{"categories", strings.Join(m.Categories, ", ")})
	}
	for _, e := range m.Entities {
		rows = append(rows, [2]string{"entity", e.Type + ": " + e.Value})
	}

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", FlagStyle.Render(fmt.Sprintf("%-13s", r[0])), r[1])
	}
	return strings.TrimRight(b.String(), "\n")
}
