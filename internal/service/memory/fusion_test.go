package memory

import (
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranked(ids ...string) []core.Ranked {
	out := make([]core.Ranked, len(ids))
	for i, id := range ids {
		out[i] = core.Ranked{ID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func TestFuseRRF_Scores(t *testing.T) {
	fused := FuseRRF(DefaultRRFK, ranked("A", "B", "C"), ranked("B", "A", "D"))
	require.Len(t, fused, 4)

	scores := make(map[string]float64, len(fused))
	for _, f := range fused {
		scores[f.ID] = f.Score
	}

	assert.InDelta(t, 1.0/61+1.0/62, scores["A"], 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, scores["B"], 1e-12)
	assert.InDelta(t, 1.0/63, scores["C"], 1e-12)
	assert.InDelta(t, 1.0/62, scores["D"], 1e-12)
	assert.Equal(t, scores["A"], scores["B"])

	var ids []string
	for _, f := range fused {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"A", "B", "D", "C"}, ids)
}

func TestFuseRRF_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]core.Ranked
		want  []string
	}{
		{name: "no lists", want: []string{}},
		{name: "empty lists", lists: [][]core.Ranked{nil, {}}, want: []string{}},
		{name: "single list keeps order", lists: [][]core.Ranked{ranked("x", "y", "z")}, want: []string{"x", "y", "z"}},
		{name: "one side empty", lists: [][]core.Ranked{nil, ranked("q", "p")}, want: []string{"q", "p"}},
		{name: "duplicate in one list counts once", lists: [][]core.Ranked{ranked("a", "a", "b"), ranked("b")}, want: []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fused := FuseRRF(DefaultRRFK, tt.lists...)
			ids := make([]string, 0, len(fused))
			for _, f := range fused {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFuseRRF_DuplicateScore(t *testing.T) {
	fused := FuseRRF(60, ranked("a", "a"))
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
}

func TestSortHits_TieBreaks(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hit := func(id string, score, importance float64, created time.Time) Hit {
		return Hit{Memory: core.Memory{ID: id, Importance: importance, CreatedAt: created}, Score: score}
	}

	hits := []Hit{
		hit("e", 0.01, 0.5, t0),
		hit("d", 0.02, 0.5, t0),
		hit("c", 0.02, 0.5, t0.Add(time.Hour)),
		hit("b", 0.02, 0.9, t0),
		hit("a", 0.03, 0.1, t0),
		hit("f", 0.02, 0.5, t0),
	}
	sortHits(hits)

	var ids []string
	for _, h := range hits {
		ids = append(ids, h.Memory.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "f", "e"}, ids)
}
