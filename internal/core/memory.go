package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type ContentType string

const (
	ContentFact       ContentType = "fact"
	ContentPreference ContentType = "preference"
	ContentEvent      ContentType = "event"
	ContentSkill      ContentType = "skill"
	ContentDocument   ContentType = "document"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentFact, ContentPreference, ContentEvent, ContentSkill, ContentDocument:
		return true
	}
	return false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

type SourceKind string

const (
	SourceConversation SourceKind = "conversation"
	SourceDocument     SourceKind = "document"
	SourceManual       SourceKind = "manual"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceConversation, SourceDocument, SourceManual:
		return true
	}
	return false
}

const DefaultImportance = 0.5

// Source records where a memory came from.
type Source struct {
	Kind           SourceKind `json:"kind"`
	ConversationID string     `json:"conversation_id,omitempty"`
	MessageIDs     []string   `json:"message_ids,omitempty"`
	ExtractedAt    *time.Time `json:"extracted_at,omitempty"`
}

type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Memory is a durable unit of long-term knowledge.
type Memory struct {
	ID             string      `json:"id"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
	Embedding      []float32   `json:"-"`
	EmbeddingModel string      `json:"embedding_model"`
	Source         Source      `json:"source"`
	Status         Status      `json:"status"`
	Importance     float64     `json:"importance"`
	Confidence     *float64    `json:"confidence,omitempty"`
	Verified       bool        `json:"verified"`
	Categories     []string    `json:"categories"`
	Entities       []Entity    `json:"entities"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	LastAccessedAt time.Time   `json:"last_accessed_at"`
	AccessCount    int64       `json:"access_count"`
}

// HasCategories reports whether the memory carries at least one of the
// given categories. An empty list matches everything.
func (m *Memory) HasCategories(categories []string) bool {
	cats := NormalizeCategories(categories)
	if len(cats) == 0 {
		return true
	}
	for _, c := range cats {
		if slices.Contains(m.Categories, c) {
			return true
		}
	}
	return false
}

// Validate checks the record against the model invariants. dim is the
// deployment-wide embedding dimension.
func (m *Memory) Validate(dim int) error {
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidMemory)
	}
	if !m.ContentType.Valid() {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidMemory, m.ContentType)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidMemory, m.Status)
	}
	if !m.Source.Kind.Valid() {
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidMemory, m.Source.Kind)
	}
	if !InUnitRange(m.Importance) {
		return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidMemory, m.Importance)
	}
	if m.Confidence != nil && !InUnitRange(*m.Confidence) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidMemory, *m.Confidence)
	}
	return CheckDimension(m.Embedding, dim)
}

// CheckDimension fails with a DimensionMismatchError when vec is not of length dim.
func CheckDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return &DimensionMismatchError{Want: dim, Got: len(vec)}
	}
	return nil
}

func InUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// NormalizeCategories trims, lower-cases, deduplicates and sorts labels.
func NormalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
