package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	m, err := env.store.Create(ctx, NewMemory{
		Content:     "  User prefers dark roast coffee ",
		ContentType: core.ContentPreference,
		Categories:  []string{"Food", "coffee", "food"},
		Entities:    []core.Entity{{Type: "drink", Value: "coffee"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "User prefers dark roast coffee", m.Content)
	assert.Equal(t, core.StatusActive, m.Status)
	assert.Equal(t, core.DefaultImportance, m.Importance)
	assert.Nil(t, m.Confidence)
	assert.False(t, m.Verified)
	assert.Equal(t, []string{"coffee", "food"}, m.Categories)
	assert.Equal(t, core.SourceManual, m.Source.Kind)
	assert.Equal(t, "test/hash", m.EmbeddingModel)
	assert.Len(t, m.Embedding, testDim)
	assert.EqualValues(t, 0, m.AccessCount)

	got, err := env.store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, 1, env.index.Count())
}

func TestStore_CreateEmbeddingUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.emb.setFail(core.ErrEmbeddingUnavailable)

	_, err := env.store.Create(ctx, NewMemory{Content: "anything"})
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)

	list, err := env.store.List(ctx, core.Filter{}, core.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_CreateDimensionMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.emb.dim = 4

	_, err := env.store.Create(context.Background(), NewMemory{Content: "short vector"})

	var dimErr *core.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, testDim, dimErr.Want)
	assert.Equal(t, 4, dimErr.Got)
}

func TestStore_CreateRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	bad := 2.0

	tests := []struct {
		name string
		nm   NewMemory
	}{
		{"empty content", NewMemory{Content: "   "}},
		{"unknown type", NewMemory{Content: "x", ContentType: "rumour"}},
		{"importance range", NewMemory{Content: "x", Importance: &bad}},
		{"confidence range", NewMemory{Content: "x", Confidence: &bad}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.store.Create(context.Background(), tt.nm)
			assert.ErrorIs(t, err, core.ErrInvalidMemory)
		})
	}
	assert.Zero(t, env.emb.calls)
}

func TestStore_UpdateContentReembeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "User lives in Porto")

	content := "User lives in Lisbon"
	imp := 0.9
	updated, err := env.store.Update(ctx, m.ID, UpdateFields{Content: &content, Importance: &imp})
	require.NoError(t, err)

	assert.Equal(t, content, updated.Content)
	assert.Equal(t, env.emb.vector(content), updated.Embedding)
	assert.NotEqual(t, m.Embedding, updated.Embedding)
	assert.Equal(t, 0.9, updated.Importance)
	assert.True(t, updated.UpdatedAt.After(m.UpdatedAt))
	assert.Equal(t, m.CreatedAt, updated.CreatedAt)

	stored, err := env.store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Content, stored.Content)
	assert.Equal(t, updated.Embedding, stored.Embedding)
}

func TestStore_UpdateOtherFieldsKeepEmbedding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "User owns a cat")
	calls := env.emb.calls

	verified := true
	cats := []string{"Pets"}
	archived := core.StatusArchived
	updated, err := env.store.Update(ctx, m.ID, UpdateFields{Verified: &verified, Categories: &cats, Status: &archived})
	require.NoError(t, err)

	assert.True(t, updated.Verified)
	assert.Equal(t, []string{"pets"}, updated.Categories)
	assert.Equal(t, core.StatusArchived, updated.Status)
	assert.Equal(t, m.Embedding, updated.Embedding)
	assert.Equal(t, calls, env.emb.calls)
}

func TestStore_UpdateFailedEmbeddingLeavesRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "original")
	env.emb.setFail(core.ErrEmbeddingUnavailable)

	content := "changed"
	_, err := env.store.Update(ctx, m.ID, UpdateFields{Content: &content})
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)

	got, err := env.store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)
	assert.Equal(t, m.Embedding, got.Embedding)
}

func TestStore_UpdateUnknownOrDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	imp := 0.1

	_, err := env.store.Update(ctx, "missing", UpdateFields{Importance: &imp})
	assert.ErrorIs(t, err, core.ErrNotFound)

	m := env.create(t, "to delete")
	require.NoError(t, env.store.Delete(ctx, m.ID))
	_, err = env.store.Update(ctx, m.ID, UpdateFields{Importance: &imp})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_UpdateStatusDeletedDeletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "short lived")

	deleted := core.StatusDeleted
	got, err := env.store.Update(ctx, m.ID, UpdateFields{Status: &deleted})
	require.NoError(t, err)
	assert.Equal(t, core.StatusDeleted, got.Status)

	_, err = env.store.Get(ctx, m.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 0, env.index.Count())
}

func TestStore_UpdateStatusDeletedTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "gone already")
	deleted := core.StatusDeleted

	_, err := env.store.Update(ctx, m.ID, UpdateFields{Status: &deleted})
	require.NoError(t, err)

	_, err = env.store.Update(ctx, m.ID, UpdateFields{Status: &deleted})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = env.store.Update(ctx, "missing", UpdateFields{Status: &deleted})
	assert.ErrorIs(t, err, core.ErrNotFound)

	// plain delete stays idempotent
	assert.NoError(t, env.store.Delete(ctx, m.ID))
}

func TestStore_SoftDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keep := env.create(t, "kept")
	gone := env.create(t, "removed")

	require.NoError(t, env.store.Delete(ctx, gone.ID))
	// idempotent
	require.NoError(t, env.store.Delete(ctx, gone.ID))
	assert.ErrorIs(t, env.store.Delete(ctx, "missing"), core.ErrNotFound)

	_, err := env.store.Get(ctx, gone.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	active, err := env.store.List(ctx, core.Filter{}, core.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{keep.ID}, memoryIDs(active))

	audit, err := env.store.List(ctx, core.Filter{Statuses: []core.Status{core.StatusDeleted}}, core.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{gone.ID}, memoryIDs(audit))

	many, err := env.store.GetMany(ctx, []string{gone.ID, keep.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{keep.ID}, memoryIDs(many))

	assert.Equal(t, 1, env.index.Count())
}

func TestStore_ListNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "first")
	b := env.create(t, "second")
	c := env.create(t, "third")

	list, err := env.store.List(context.Background(), core.Filter{}, core.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, b.ID}, memoryIDs(list))

	list, err = env.store.List(context.Background(), core.Filter{}, core.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, memoryIDs(list))
}

func TestStore_RecordAccessCountsOncePerID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, "a")
	b := env.create(t, "b")

	require.NoError(t, env.store.RecordAccess(ctx, a.ID, a.ID, b.ID))
	require.NoError(t, env.store.RecordAccess(ctx, a.ID))

	got, err := env.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.AccessCount)
	assert.True(t, got.LastAccessedAt.After(a.LastAccessedAt))

	got, err = env.store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.AccessCount)
}

func TestStore_ReinforceKeepsAccessCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	low := 0.4
	m := env.create(t, "fact", func(nm *NewMemory) { nm.Confidence = &low })
	require.NoError(t, env.store.RecordAccess(ctx, m.ID))

	require.NoError(t, env.store.Reinforce(ctx, m.ID, 0.7))
	require.NoError(t, env.store.Reinforce(ctx, m.ID, 0.5))

	got, err := env.store.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.7, *got.Confidence, 1e-9)
	assert.EqualValues(t, 1, got.AccessCount)
}

func TestStore_ConcurrentUpdatesSameID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "contended")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			imp := float64(i) / 20
			if _, err := env.store.Update(ctx, m.ID, UpdateFields{Importance: &imp}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := env.store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, core.InUnitRange(got.Importance))
	assert.Equal(t, m.Embedding, got.Embedding)
}

func TestStore_SyncIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "one")
	env.create(t, "two")
	gone := env.create(t, "three")
	require.NoError(t, env.store.Delete(ctx, gone.ID))

	require.NoError(t, env.index.Reset(ctx))
	assert.Equal(t, 0, env.index.Count())

	n, err := env.store.SyncIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, env.index.Count())
}

func TestStore_SyncIndexDimensionMismatchHalts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "stored with eight dims")

	wide := NewStore(sqlite.NewMemoryRepo(env.db, 16), env.index, env.emb, 16)
	_, err := wide.SyncIndex(ctx)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestStore_StaleAndReembed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "legacy vector")
	deleted := env.create(t, "deleted legacy")
	require.NoError(t, env.store.Delete(ctx, deleted.ID))

	env.emb.model = "test/next"
	env.emb.fixed["legacy vector"] = unit(3, 0)

	stale, err := env.store.Stale(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{m.ID}, memoryIDs(stale))

	n, err := env.store.Reembed(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "test/next", got.EmbeddingModel)
	assert.Equal(t, unit(3, 0), got.Embedding)

	stale, err = env.store.Stale(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestStore_ReembedSkipsEditedRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "before edit")

	env.emb.model = "test/next"
	stale, err := env.store.Stale(ctx, 10)
	require.NoError(t, err)

	content := "after edit"
	_, err = env.store.Update(ctx, m.ID, UpdateFields{Content: &content})
	require.NoError(t, err)

	n, err := env.store.Reembed(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_ReembedEmbeddingDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.create(t, "x")
	env.emb.setFail(errors.New("down"))

	_, err := env.store.Reembed(ctx, []core.Memory{m})
	assert.Error(t, err)
}

func memoryIDs(memories []core.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.ID
	}
	return out
}
