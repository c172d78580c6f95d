package vector

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mem(id string, vec []float32, mutate ...func(*core.Memory)) core.Memory {
	m := core.Memory{
		ID:          id,
		Content:     id,
		ContentType: core.ContentFact,
		Embedding:   vec,
		Source:      core.Source{Kind: core.SourceManual},
		Status:      core.StatusActive,
	}
	for _, f := range mutate {
		f(&m)
	}
	return m
}

func newIndex(t *testing.T, memories ...core.Memory) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), memories...))
	return idx
}

func resultIDs(r []core.Ranked) []string {
	out := make([]string, len(r))
	for i, x := range r {
		out[i] = x.ID
	}
	return out
}

func TestChromemIndex_QueryOrder(t *testing.T) {
	idx := newIndex(t,
		mem("x", []float32{1, 0, 0}),
		mem("xy", []float32{1, 1, 0}),
		mem("y", []float32{0, 1, 0}),
	)

	hits, err := idx.QueryVector(context.Background(), []float32{1, 0, 0}, core.Filter{}, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "xy", "y"}, resultIDs(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestChromemIndex_Filters(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t,
		mem("a", []float32{1, 0}, func(m *core.Memory) {
			m.Categories = []string{"work", "travel"}
			m.Source.ConversationID = "c1"
		}),
		mem("b", []float32{1, 0.1}, func(m *core.Memory) {
			m.Categories = []string{"work"}
			m.ContentType = core.ContentEvent
		}),
		mem("c", []float32{1, 0.2}, func(m *core.Memory) { m.Status = core.StatusArchived }),
	)

	tests := []struct {
		name   string
		filter core.Filter
		want   []string
	}{
		{"active by default", core.Filter{}, []string{"a", "b"}},
		{"any category", core.Filter{Categories: []string{"travel", "sport"}}, []string{"a"}},
		{"shared category", core.Filter{Categories: []string{"Work"}}, []string{"a", "b"}},
		{"no category matches", core.Filter{Categories: []string{"sport"}}, []string{}},
		{"conversation", core.Filter{ConversationID: "c1"}, []string{"a"}},
		{"any content type", core.Filter{ContentTypes: []core.ContentType{core.ContentEvent, core.ContentSkill}}, []string{"b"}},
		{"multiple statuses", core.Filter{Statuses: []core.Status{core.StatusActive, core.StatusArchived}}, []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.QueryVector(ctx, []float32{1, 0}, tt.filter, 100, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resultIDs(hits))
		})
	}
}

func TestChromemIndex_LimitAndEmpty(t *testing.T) {
	ctx := context.Background()

	empty := newIndex(t)
	hits, err := empty.QueryVector(ctx, []float32{1, 0}, core.Filter{}, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	idx := newIndex(t, mem("a", []float32{1, 0}), mem("b", []float32{0, 1}))
	hits, err = idx.QueryVector(ctx, []float32{1, 0}, core.Filter{}, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resultIDs(hits))
}

func TestChromemIndex_UpsertDeleteReset(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, mem("a", []float32{1, 0}), mem("b", []float32{0, 1}))

	// re-upsert replaces the vector
	require.NoError(t, idx.Upsert(ctx, mem("a", []float32{0, 1})))
	assert.Equal(t, 2, idx.Count())

	require.NoError(t, idx.Upsert(ctx, mem("b", []float32{0, 1}, func(m *core.Memory) {
		m.Status = core.StatusDeleted
	})))
	assert.Equal(t, 1, idx.Count())

	require.NoError(t, idx.Delete(ctx, "a"))
	assert.Equal(t, 0, idx.Count())

	require.NoError(t, idx.Upsert(ctx, mem("c", []float32{1, 0})))
	require.NoError(t, idx.Reset(ctx))
	assert.Equal(t, 0, idx.Count())
}

func TestChromemIndex_QueryWhileDeleting(t *testing.T) {
	ctx := context.Background()
	const n = 200

	memories := make([]core.Memory, n)
	for k := range memories {
		memories[k] = mem(fmt.Sprintf("m%d", k), []float32{1, float32(k) / n})
	}
	idx := newIndex(t, memories...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, m := range memories {
			assert.NoError(t, idx.Delete(ctx, m.ID))
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, err := idx.QueryVector(ctx, []float32{1, 0}, core.Filter{}, n, n)
				assert.NoError(t, err)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, idx.Count())
}
