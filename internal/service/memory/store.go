package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/syncx"
)

// Embedder is the part of the embedding service the memory layer depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([]core.Embedding, error)
	Model() string
}

// NewMemory describes a record to create. Nil pointers take defaults.
type NewMemory struct {
	Content     string
	ContentType core.ContentType
	Source      core.Source
	Importance  *float64
	Confidence  *float64
	Verified    bool
	Categories  []string
	Entities    []core.Entity
}

// Draft is a NewMemory whose embedding was computed by the caller.
type Draft struct {
	NewMemory
	Embedding core.Embedding
}

// UpdateFields lists the fields to change; nil means keep.
type UpdateFields struct {
	Content     *string
	ContentType *core.ContentType
	Status      *core.Status
	Importance  *float64
	Confidence  *float64
	Verified    *bool
	Categories  *[]string
	Entities    *[]core.Entity
}

// Store owns the lifecycle of memory records. It is the only writer of the
// canonical repository and keeps the vector index in step with it.
type Store struct {
	repo     core.MemoryRepository
	index    core.VectorIndex
	embedder Embedder
	dim      int
	locks    *syncx.KeyedMutex

	now   func() time.Time
	newID func() string
}

func NewStore(repo core.MemoryRepository, index core.VectorIndex, embedder Embedder, dim int) *Store {
	return &Store{
		repo:     repo,
		index:    index,
		embedder: embedder,
		dim:      dim,
		locks:    syncx.NewKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Create embeds the content and persists a new active memory. Nothing is
// written when embedding fails.
func (s *Store) Create(ctx context.Context, nm NewMemory) (core.Memory, error) {
	nm = normalizeNew(nm)
	if err := validateNew(nm); err != nil {
		return core.Memory{}, err
	}

	embs, err := s.embedder.EmbedBatch(ctx, []string{nm.Content}, 1)
	if err != nil {
		return core.Memory{}, fmt.Errorf("embed memory: %w", err)
	}

	created, err := s.CreateBatch(ctx, []Draft{{NewMemory: nm, Embedding: embs[0]}})
	if err != nil {
		return core.Memory{}, err
	}
	return created[0], nil
}

// CreateBatch commits pre-embedded drafts in a single transaction.
func (s *Store) CreateBatch(ctx context.Context, drafts []Draft) ([]core.Memory, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	now := s.now()
	memories := make([]core.Memory, 0, len(drafts))
	for _, d := range drafts {
		nm := normalizeNew(d.NewMemory)
		if err := validateNew(nm); err != nil {
			return nil, err
		}

		m := core.Memory{
			ID:             s.newID(),
			Content:        nm.Content,
			ContentType:    nm.ContentType,
			Embedding:      d.Embedding.Vector,
			EmbeddingModel: d.Embedding.Model,
			Source:         nm.Source,
			Status:         core.StatusActive,
			Importance:     *nm.Importance,
			Confidence:     nm.Confidence,
			Verified:       nm.Verified,
			Categories:     nm.Categories,
			Entities:       nm.Entities,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastAccessedAt: now,
		}
		if err := m.Validate(s.dim); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}

	if err := s.repo.Insert(ctx, memories...); err != nil {
		return nil, fmt.Errorf("insert memories: %w", err)
	}
	s.indexUpsert(ctx, memories...)

	return memories, nil
}

// Get returns a live memory; deleted records are reported as not found.
func (s *Store) Get(ctx context.Context, id string) (core.Memory, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return core.Memory{}, err
	}
	if m.Status == core.StatusDeleted {
		return core.Memory{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return m, nil
}

// GetMany returns the live memories among ids, in the order of ids.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]core.Memory, error) {
	found, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.Memory, len(found))
	for _, m := range found {
		if m.Status != core.StatusDeleted {
			byID[m.ID] = m
		}
	}

	out := make([]core.Memory, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
			delete(byID, id)
		}
	}
	return out, nil
}

// Update applies fields to a live memory. New content is re-embedded and
// written together with its vector.
func (s *Store) Update(ctx context.Context, id string, fields UpdateFields) (core.Memory, error) {
	if fields.Status != nil && *fields.Status == core.StatusDeleted {
		return s.deleteLive(ctx, id)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	m, err := s.Get(ctx, id)
	if err != nil {
		return core.Memory{}, err
	}

	if fields.Content != nil && strings.TrimSpace(*fields.Content) != m.Content {
		content := strings.TrimSpace(*fields.Content)
		if content == "" {
			return core.Memory{}, fmt.Errorf("%w: content is empty", core.ErrInvalidMemory)
		}
		embs, err := s.embedder.EmbedBatch(ctx, []string{content}, 1)
		if err != nil {
			return core.Memory{}, fmt.Errorf("embed memory: %w", err)
		}
		m.Content = content
		m.Embedding = embs[0].Vector
		m.EmbeddingModel = embs[0].Model
	}
	if fields.ContentType != nil {
		m.ContentType = *fields.ContentType
	}
	if fields.Status != nil {
		m.Status = *fields.Status
	}
	if fields.Importance != nil {
		m.Importance = *fields.Importance
	}
	if fields.Confidence != nil {
		m.Confidence = fields.Confidence
	}
	if fields.Verified != nil {
		m.Verified = *fields.Verified
	}
	if fields.Categories != nil {
		m.Categories = core.NormalizeCategories(*fields.Categories)
	}
	if fields.Entities != nil {
		m.Entities = slices.Clone(*fields.Entities)
	}
	m.UpdatedAt = s.now()

	if err := s.repo.Save(ctx, m); err != nil {
		return core.Memory{}, fmt.Errorf("save memory: %w", err)
	}
	s.indexUpsert(ctx, m)

	return m, nil
}

// Delete soft-deletes a memory. Deleting twice is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == core.StatusDeleted {
		return nil
	}
	_, err = s.softDelete(ctx, m)
	return err
}

// deleteLive backs an update to status deleted. Unlike Delete it treats an
// already deleted record as missing, like every other update.
func (s *Store) deleteLive(ctx context.Context, id string) (core.Memory, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	m, err := s.Get(ctx, id)
	if err != nil {
		return core.Memory{}, err
	}
	return s.softDelete(ctx, m)
}

// softDelete expects the id lock held.
func (s *Store) softDelete(ctx context.Context, m core.Memory) (core.Memory, error) {
	m.Status = core.StatusDeleted
	m.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, m); err != nil {
		return core.Memory{}, fmt.Errorf("delete memory: %w", err)
	}

	if err := s.index.Delete(ctx, m.ID); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("memory_id", m.ID).Msg("failed to drop memory from vector index")
	}
	return m, nil
}

// List returns memories newest first. Deleted records only appear when the
// filter asks for them.
func (s *Store) List(ctx context.Context, filter core.Filter, page core.Page) ([]core.Memory, error) {
	return s.repo.List(ctx, filter, page)
}

// RecordAccess counts one retrieval per distinct id.
func (s *Store) RecordAccess(ctx context.Context, ids ...string) error {
	return s.repo.RecordAccess(ctx, ids, s.now())
}

// Reinforce is used when a new observation repeats an existing memory. It
// keeps the higher confidence and refreshes last access without counting one.
func (s *Store) Reinforce(ctx context.Context, id string, confidence float64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.repo.Reinforce(ctx, id, confidence, s.now())
}

// Similar returns the nearest live memories to embedding.
func (s *Store) Similar(ctx context.Context, embedding []float32, filter core.Filter, limit int) ([]core.Ranked, error) {
	return s.index.QueryVector(ctx, embedding, filter, limit*10, limit)
}

// Stale lists records embedded by a model other than the current one.
func (s *Store) Stale(ctx context.Context, limit int) ([]core.Memory, error) {
	return s.repo.Stale(ctx, s.embedder.Model(), limit)
}

// Reembed refreshes the vectors of the given memories with the current
// model. Records edited or deleted in the meantime are skipped. It returns
// how many records were rewritten.
func (s *Store) Reembed(ctx context.Context, memories []core.Memory) (int, error) {
	if len(memories) == 0 {
		return 0, nil
	}

	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Content
	}

	embs, err := s.embedder.EmbedBatch(ctx, texts, 0)
	if err != nil && embs == nil {
		return 0, fmt.Errorf("reembed: %w", err)
	}

	var done int
	for i, m := range memories {
		e := embs[i]
		if e.Vector == nil || e.Model != s.embedder.Model() {
			continue
		}
		ok, serr := s.swapEmbedding(ctx, m, e)
		if serr != nil {
			return done, serr
		}
		if ok {
			done++
		}
	}
	// partial batch failures are retried on the next pass
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Int("reembedded", done).Msg("some memories could not be re-embedded")
	}
	return done, nil
}

func (s *Store) swapEmbedding(ctx context.Context, old core.Memory, e core.Embedding) (bool, error) {
	unlock := s.locks.Lock(old.ID)
	defer unlock()

	cur, err := s.repo.Get(ctx, old.ID)
	if err != nil {
		return false, err
	}
	if cur.Status == core.StatusDeleted || cur.Content != old.Content {
		return false, nil
	}

	cur.Embedding = e.Vector
	cur.EmbeddingModel = e.Model
	if err := s.repo.Save(ctx, cur); err != nil {
		return false, fmt.Errorf("save memory: %w", err)
	}
	s.indexUpsert(ctx, cur)
	return true, nil
}

// SyncIndex rebuilds the vector index from the canonical records. A stored
// vector of the wrong size aborts the rebuild with ErrDimensionMismatch.
func (s *Store) SyncIndex(ctx context.Context) (int, error) {
	if err := s.index.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset vector index: %w", err)
	}

	var n int
	err := s.repo.Scan(ctx, func(m core.Memory) error {
		if err := core.CheckDimension(m.Embedding, s.dim); err != nil {
			return fmt.Errorf("memory %s: %w", m.ID, err)
		}
		if err := s.index.Upsert(ctx, m); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("sync vector index: %w", err)
	}
	return n, nil
}

// indexUpsert never fails the write: the canonical record is committed and
// the index is rebuilt from it on the next start.
func (s *Store) indexUpsert(ctx context.Context, memories ...core.Memory) {
	if err := s.index.Upsert(ctx, memories...); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Int("count", len(memories)).Msg("failed to update vector index")
	}
}

func normalizeNew(nm NewMemory) NewMemory {
	nm.Content = strings.TrimSpace(nm.Content)
	if nm.ContentType == "" {
		nm.ContentType = core.ContentFact
	}
	if nm.Source.Kind == "" {
		nm.Source.Kind = core.SourceManual
	}
	if nm.Importance == nil {
		imp := core.DefaultImportance
		nm.Importance = &imp
	}
	nm.Categories = core.NormalizeCategories(nm.Categories)
	if nm.Entities == nil {
		nm.Entities = []core.Entity{}
	}
	nm.Source.MessageIDs = append([]string{}, nm.Source.MessageIDs...)
	return nm
}

func validateNew(nm NewMemory) error {
	if nm.Content == "" {
		return fmt.Errorf("%w: content is empty", core.ErrInvalidMemory)
	}
	if !nm.ContentType.Valid() {
		return fmt.Errorf("%w: unknown content type %q", core.ErrInvalidMemory, nm.ContentType)
	}
	if !nm.Source.Kind.Valid() {
		return fmt.Errorf("%w: unknown source kind %q", core.ErrInvalidMemory, nm.Source.Kind)
	}
	if !core.InUnitRange(*nm.Importance) {
		return fmt.Errorf("%w: importance %v outside [0,1]", core.ErrInvalidMemory, *nm.Importance)
	}
	if nm.Confidence != nil && !core.InUnitRange(*nm.Confidence) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", core.ErrInvalidMemory, *nm.Confidence)
	}
	return nil
}
