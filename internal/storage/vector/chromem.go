// Package vector holds the in-process semantic index. It is a derived
// structure rebuilt from the canonical SQLite records on startup.
package vector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/sandevgo/tuskmem/internal/core"
)

const collectionName = "memories"

const (
	metaStatus         = "status"
	metaContentType    = "content_type"
	metaConversationID = "conversation_id"
	metaCategoryPrefix = "cat:"
)

var errNoEmbeddingFunc = errors.New("vector index only accepts precomputed embeddings")

// ChromemIndex guards the collection with mu: queries hold it shared so the
// document count cannot shrink between clamping nResults and querying.
type ChromemIndex struct {
	mu  sync.RWMutex
	db  *chromem.DB
	col *chromem.Collection
}

func NewChromemIndex() (*ChromemIndex, error) {
	idx := &ChromemIndex{db: chromem.NewDB()}
	if err := idx.createCollection(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *ChromemIndex) createCollection() error {
	col, err := i.db.GetOrCreateCollection(collectionName, nil, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create vector collection: %w", err)
	}
	i.col = col
	return nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (i *ChromemIndex) collection() *chromem.Collection {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.col
}

// Upsert replaces the indexed vector and filter metadata of each memory.
// Deleted memories are removed instead.
func (i *ChromemIndex) Upsert(ctx context.Context, memories ...core.Memory) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	col := i.col
	for _, m := range memories {
		if m.Status == core.StatusDeleted {
			if err := i.delete(ctx, m.ID); err != nil {
				return err
			}
			continue
		}

		doc := chromem.Document{
			ID:        m.ID,
			Metadata:  metadata(m),
			Embedding: slices.Clone(m.Embedding),
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to index memory %s: %w", m.ID, err)
		}
	}
	return nil
}

func (i *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.delete(ctx, ids...)
}

// delete expects mu held for writing.
func (i *ChromemIndex) delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := i.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to remove from vector index: %w", err)
	}
	return nil
}

// Reset drops every indexed vector.
func (i *ChromemIndex) Reset(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("failed to drop vector collection: %w", err)
	}
	return i.createCollection()
}

func (i *ChromemIndex) Count() int {
	return i.collection().Count()
}

// QueryVector returns up to limit ids by cosine similarity. numCandidates
// bounds how many nearest neighbours are examined before filters that the
// metadata store cannot express are applied.
func (i *ChromemIndex) QueryVector(ctx context.Context, embedding []float32, filter core.Filter, numCandidates, limit int) ([]core.Ranked, error) {
	if limit <= 0 {
		return nil, nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	col := i.col

	n := max(numCandidates, limit)
	// chromem rejects nResults above the collection size
	n = min(n, col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, where(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	statuses := filter.EffectiveStatuses()
	ranked := make([]core.Ranked, 0, min(limit, len(results)))
	for _, r := range results {
		if !slices.Contains(statuses, core.Status(r.Metadata[metaStatus])) {
			continue
		}
		if len(filter.ContentTypes) > 0 &&
			!slices.Contains(filter.ContentTypes, core.ContentType(r.Metadata[metaContentType])) {
			continue
		}
		if !hasAnyCategory(r.Metadata, filter.Categories) {
			continue
		}
		ranked = append(ranked, core.Ranked{ID: r.ID, Score: float64(r.Similarity)})
		if len(ranked) == limit {
			break
		}
	}
	return ranked, nil
}

func metadata(m core.Memory) map[string]string {
	meta := map[string]string{
		metaStatus:      string(m.Status),
		metaContentType: string(m.ContentType),
	}
	if m.Source.ConversationID != "" {
		meta[metaConversationID] = m.Source.ConversationID
	}
	for _, c := range core.NormalizeCategories(m.Categories) {
		meta[metaCategoryPrefix+c] = "1"
	}
	return meta
}

func hasAnyCategory(meta map[string]string, categories []string) bool {
	cats := core.NormalizeCategories(categories)
	if len(cats) == 0 {
		return true
	}
	for _, c := range cats {
		if meta[metaCategoryPrefix+c] == "1" {
			return true
		}
	}
	return false
}

// where pushes the equality constraints down to chromem. Multi-valued
// status, content type and category sets are checked on the results.
func where(f core.Filter) map[string]string {
	w := make(map[string]string)
	if statuses := f.EffectiveStatuses(); len(statuses) == 1 {
		w[metaStatus] = string(statuses[0])
	}
	if len(f.ContentTypes) == 1 {
		w[metaContentType] = string(f.ContentTypes[0])
	}
	if f.ConversationID != "" {
		w[metaConversationID] = f.ConversationID
	}
	if len(w) == 0 {
		return nil
	}
	return w
}
