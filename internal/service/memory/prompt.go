package memory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

const extractionSystemPrompt = "You are a memory extraction system. Output only valid JSON."

func buildExtractionPrompt(transcript string) string {
	return fmt.Sprintf(`Analyze the conversation and extract facts, preferences and information worth remembering long-term.

Focus on:
- user preferences, likes and dislikes
- important facts about the user
- significant decisions or plans
- skills or expertise mentioned
- context that will be useful in future conversations

Ignore greetings and small talk. Every memory must be self-contained: write "User" instead of pronouns.

For each memory return an object with:
- "content": the memory text, concise but complete
- "content_type": one of fact, preference, event, skill, document
- "categories": list of short lowercase tags
- "entities": list of {"type", "value"} objects for people, places, projects and tools mentioned
- "importance": number from 0.0 to 1.0
- "confidence": number from 0.0 to 1.0, how certain the statement is

Return a JSON array of such objects and nothing else. Return [] when nothing is worth remembering.

Example:
[
  {"content": "User prefers Go over Python for backend services", "content_type": "preference", "categories": ["coding"], "entities": [{"type": "language", "value": "Go"}], "importance": 0.7, "confidence": 0.9}
]

Conversation:
%s`, transcript)
}

// candidate is one memory proposed by the extraction model.
type candidate struct {
	Content     string           `json:"content"`
	ContentType core.ContentType `json:"content_type"`
	Categories  []string         `json:"categories"`
	Entities    []core.Entity    `json:"entities"`
	Importance  *float64         `json:"importance"`
	Confidence  *float64         `json:"confidence"`
}

// parseCandidates decodes and validates a model answer. Any invalid
// element rejects the whole answer.
func parseCandidates(content string) ([]candidate, error) {
	jsonStr := extractJSONArray(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var cands []candidate
	if err := json.Unmarshal([]byte(jsonStr), &cands); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}

	for i := range cands {
		if err := cands[i].validate(); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return cands, nil
}

func (c *candidate) validate() error {
	c.Content = strings.TrimSpace(c.Content)
	if c.Content == "" {
		return fmt.Errorf("empty content")
	}
	if c.ContentType == "" {
		c.ContentType = core.ContentFact
	}
	if !c.ContentType.Valid() {
		return fmt.Errorf("unknown content_type %q", c.ContentType)
	}
	if c.Importance != nil && !core.InUnitRange(*c.Importance) {
		return fmt.Errorf("importance %v outside [0,1]", *c.Importance)
	}
	if c.Confidence != nil && !core.InUnitRange(*c.Confidence) {
		return fmt.Errorf("confidence %v outside [0,1]", *c.Confidence)
	}
	for _, e := range c.Entities {
		if strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Value) == "" {
			return fmt.Errorf("entity with empty type or value")
		}
	}
	return nil
}

// extractJSONArray tolerates prose or code fences around the array.
func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content[start:], "]")
	if end == -1 {
		return ""
	}

	return content[start : start+end+1]
}

func formatConversation(msgs []core.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}
