package core

import "slices"

// Filter restricts search and listing. Zero Statuses means active only.
// A memory matches when it carries any of Categories and has any of ContentTypes.
type Filter struct {
	Statuses       []Status
	Categories     []string
	ContentTypes   []ContentType
	ConversationID string
}

func (f Filter) EffectiveStatuses() []Status {
	if len(f.Statuses) == 0 {
		return []Status{StatusActive}
	}
	return f.Statuses
}

// Matches applies the filter to an already loaded record.
func (f Filter) Matches(m *Memory) bool {
	if !slices.Contains(f.EffectiveStatuses(), m.Status) {
		return false
	}
	if len(f.ContentTypes) > 0 && !slices.Contains(f.ContentTypes, m.ContentType) {
		return false
	}
	if f.ConversationID != "" && m.Source.ConversationID != f.ConversationID {
		return false
	}
	return m.HasCategories(f.Categories)
}

type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Ranked is one entry of a backend result list, best first.
type Ranked struct {
	ID    string
	Score float64
}
