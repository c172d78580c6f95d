package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_InsertGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo(newTestDB(t), testDim)

	extracted := baseTime.Add(time.Minute)
	conf := 0.8
	m := testMemory("m1", "Alice lives in Lisbon", 0)
	m.ContentType = core.ContentFact
	m.Confidence = &conf
	m.Categories = []string{"location", "personal"}
	m.Entities = []core.Entity{{Type: "person", Value: "Alice"}}
	m.Source = core.Source{
		Kind:           core.SourceConversation,
		ConversationID: "conv-1",
		MessageIDs:     []string{"msg-1", "msg-2"},
		ExtractedAt:    &extracted,
	}

	require.NoError(t, repo.Insert(ctx, m))

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMemoryRepo_InsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo(newTestDB(t), testDim)

	bad := testMemory("m2", "bad vector", 0)
	bad.Embedding = []float32{1, 2}

	err := repo.Insert(ctx, testMemory("m1", "good", 0), bad)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = repo.Get(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryRepo_GetUnknown(t *testing.T) {
	repo := NewMemoryRepo(newTestDB(t), testDim)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryRepo_Save(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo(newTestDB(t), testDim)
	require.NoError(t, repo.Insert(ctx, testMemory("m1", "old content", 0)))

	m, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	m.Content = "new content"
	m.Embedding = []float32{0, 1, 0, 0}
	m.EmbeddingModel = "test/other"
	m.UpdatedAt = baseTime.Add(time.Hour)
	require.NoError(t, repo.Save(ctx, m))

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "new content", got.Content)
	assert.Equal(t, []float32{0, 1, 0, 0}, got.Embedding)
	assert.Equal(t, "test/other", got.EmbeddingModel)
	assert.Equal(t, baseTime, got.CreatedAt)

	m.ID = "missing"
	assert.ErrorIs(t, repo.Save(ctx, m), core.ErrNotFound)
}

func TestMemoryRepo_List(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo(newTestDB(t), testDim)

	a := testMemory("a", "first", 0)
	a.Categories = []string{"work"}
	b := testMemory("b", "second", time.Minute)
	b.Categories = []string{"travel", "work"}
	b.ContentType = core.ContentEvent
	c := testMemory("c", "third", 2*time.Minute)
	c.Status = core.StatusDeleted
	d := testMemory("d", "same time as b", time.Minute)
	require.NoError(t, repo.Insert(ctx, a, b, c, d))

	tests := []struct {
		name   string
		filter core.Filter
		page   core.Page
		want   []string
	}{
		{"default active newest first", core.Filter{}, core.Page{}, []string{"d", "b", "a"}},
		{"deleted on request", core.Filter{Statuses: []core.Status{core.StatusDeleted}}, core.Page{}, []string{"c"}},
		{"any category", core.Filter{Categories: []string{"travel", "sport"}}, core.Page{}, []string{"b"}},
		{"either category", core.Filter{Categories: []string{"work", "travel"}}, core.Page{}, []string{"b", "a"}},
		{"no category matches", core.Filter{Categories: []string{"sport"}}, core.Page{}, []string{}},
		{"single category", core.Filter{Categories: []string{"work"}}, core.Page{}, []string{"b", "a"}},
		{"content type", core.Filter{ContentTypes: []core.ContentType{core.ContentEvent}}, core.Page{}, []string{"b"}},
		{"paged", core.Filter{}, core.Page{Limit: 1, Offset: 1}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter, tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryRepo_RecordAccess(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo(newTestDB(t), testDim)

	del := testMemory("gone", "deleted", 0)
	del.Status = core.StatusDeleted
	require.NoError(t, repo.Insert(ctx, testMemory("m1", "one", 0), testMemory("m2", "two", 0), del))

	at := baseTime.Add(time.Hour)
	require.NoError(t, repo.RecordAccess(ctx, []string{"m1", "m1", "m2", "gone"}, at))

	m1, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, m1.AccessCount)
	assert.Equal(t, at, m1.LastAccessedAt)

	gone, err := repo.Get(ctx, "gone")
	require.NoError(t, err)
	assert.EqualValues(t, 0, gone.AccessCount)
}

func TestMemoryRepo_Reinforce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo(newTestDB(t), testDim)

	conf := 0.6
	m := testMemory("m1", "one", 0)
	m.Confidence = &conf
	m.AccessCount = 3
	require.NoError(t, repo.Insert(ctx, m))

	at := baseTime.Add(time.Hour)
	require.NoError(t, repo.Reinforce(ctx, "m1", 0.9, at))
	require.NoError(t, repo.Reinforce(ctx, "m1", 0.7, at))

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.9, *got.Confidence, 1e-9)
	assert.EqualValues(t, 3, got.AccessCount)
	assert.Equal(t, at, got.LastAccessedAt)

	assert.ErrorIs(t, repo.Reinforce(ctx, "missing", 0.5, at), core.ErrNotFound)
}

func TestMemoryRepo_StaleAndScan(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo(newTestDB(t), testDim)

	old := testMemory("old", "old model", 0)
	old.EmbeddingModel = "test/legacy"
	del := testMemory("del", "deleted", 0)
	del.EmbeddingModel = "test/legacy"
	del.Status = core.StatusDeleted
	require.NoError(t, repo.Insert(ctx, testMemory("cur", "current", 0), old, del))

	stale, err := repo.Stale(ctx, "test/model", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids(stale))

	var seen []string
	require.NoError(t, repo.Scan(ctx, func(m core.Memory) error {
		seen = append(seen, m.ID)
		return nil
	}))
	assert.ElementsMatch(t, []string{"cur", "old"}, seen)
}

func TestMemoryRepo_ScanRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewMemoryRepo(db, testDim).Insert(ctx, testMemory("m1", "one", 0)))

	err := NewMemoryRepo(db, 8).Scan(ctx, func(core.Memory) error { return nil })
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestDecodeMemory_UnknownVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMemoryRepo(db, testDim)
	require.NoError(t, repo.Insert(ctx, testMemory("m1", "one", 0)))

	_, err := db.ExecContext(ctx, `UPDATE memories SET record_version = 99 WHERE id = 'm1'`)
	require.NoError(t, err)

	_, err = repo.Get(ctx, "m1")
	assert.ErrorContains(t, err, "unsupported record version 99")
}

func TestDecodeMemory_InvalidRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMemoryRepo(db, testDim)
	require.NoError(t, repo.Insert(ctx, testMemory("m1", "one", 0)))

	_, err := db.ExecContext(ctx, `UPDATE memories SET content_type = 'rumour' WHERE id = 'm1'`)
	require.NoError(t, err)

	_, err = repo.Get(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrInvalidMemory)
}

func TestEnsureDimension(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, EnsureDimension(ctx, db, 1024))
	require.NoError(t, EnsureDimension(ctx, db, 1024))

	err := EnsureDimension(ctx, db, 768)
	var dimErr *core.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 768, dimErr.Want)
	assert.Equal(t, 1024, dimErr.Got)
}

func ids(memories []core.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.ID
	}
	return out
}
