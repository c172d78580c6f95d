package core

import (
	"context"
	"time"
)

// MemoryRepository persists canonical memory records.
type MemoryRepository interface {
	Insert(ctx context.Context, memories ...Memory) error
	Get(ctx context.Context, id string) (Memory, error)
	GetMany(ctx context.Context, ids []string) ([]Memory, error)
	Save(ctx context.Context, m Memory) error
	List(ctx context.Context, filter Filter, page Page) ([]Memory, error)
	RecordAccess(ctx context.Context, ids []string, at time.Time) error
	Reinforce(ctx context.Context, id string, confidence float64, at time.Time) error
	Stale(ctx context.Context, model string, limit int) ([]Memory, error)
	Scan(ctx context.Context, fn func(Memory) error) error
}

// VectorIndex is the semantic search backend. Scores are cosine similarities.
type VectorIndex interface {
	QueryVector(ctx context.Context, embedding []float32, filter Filter, numCandidates, limit int) ([]Ranked, error)
	Upsert(ctx context.Context, memories ...Memory) error
	Delete(ctx context.Context, ids ...string) error
	Reset(ctx context.Context) error
}

// LexicalIndex is the keyword search backend. Scores are BM25-style, higher is better.
type LexicalIndex interface {
	QueryText(ctx context.Context, query string, filter Filter, limit int) ([]Ranked, error)
}

// MessageTracker remembers which conversation messages were already
// turned into memories.
type MessageTracker interface {
	Unprocessed(ctx context.Context, conversationID string, messageIDs []string) ([]string, error)
	MarkProcessed(ctx context.Context, conversationID string, messageIDs []string) error
}
