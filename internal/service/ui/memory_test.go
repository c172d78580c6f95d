package ui

import (
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestRenderMemory(t *testing.T) {
	conf := 0.8
	m := core.Memory{
		ID:          "mem-1",
		Content:     "User prefers tea",
		ContentType: core.ContentPreference,
		Status:      core.StatusArchived,
		Importance:  0.5,
		Confidence:  &conf,
		Categories:  []string{"drinks", "food"},
	}

	out := RenderMemory(m, 0.0325)
	assert.Contains(t, out, "mem-1")
	assert.Contains(t, out, "User prefers tea")
	assert.Contains(t, out, "archived")
	assert.Contains(t, out, "confidence 0.80")
	assert.Contains(t, out, "score 0.0325")
	assert.Contains(t, out, "#drinks #food")

	out = RenderMemory(m, -1)
	assert.NotContains(t, out, "score")
}

func TestRenderDetails(t *testing.T) {
	m := core.Memory{
		ID:          "mem-2",
		Content:     "User lives in Porto",
		ContentType: core.ContentFact,
		Status:      core.StatusActive,
		Source:      core.Source{Kind: core.SourceConversation, ConversationID: "c1", MessageIDs: []string{"m1", "m2"}},
		Entities:    []core.Entity{{Type: "place", Value: "Porto"}},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		AccessCount: 3,
	}

	out := RenderDetails(m)
	assert.Contains(t, out, "User lives in Porto")
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "m1, m2")
	assert.Contains(t, out, "place: Porto")
	assert.Contains(t, out, "3 times")
	assert.NotContains(t, out, "confidence")
}
