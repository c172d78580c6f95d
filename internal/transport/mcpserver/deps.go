package mcpserver

import (
	"context"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/memory"
)

// MemoryStore is the record lifecycle used by the CRUD tools.
type MemoryStore interface {
	Create(ctx context.Context, nm memory.NewMemory) (core.Memory, error)
	Get(ctx context.Context, id string) (core.Memory, error)
	Update(ctx context.Context, id string, fields memory.UpdateFields) (core.Memory, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter core.Filter, page core.Page) ([]core.Memory, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, filter core.Filter, limit int) ([]memory.Hit, error)
}

type Extractor interface {
	ExtractFromConversation(ctx context.Context, conversationID string, messages []core.Message) ([]core.Memory, error)
	Extract(ctx context.Context, transcript string, source core.Source) ([]core.Memory, error)
}

// Submitter queues background extraction.
type Submitter interface {
	Submit(ctx context.Context, conversationID string, messages []core.Message)
}

type DocumentFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}
