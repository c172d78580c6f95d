package memory

import (
	"cmp"
	"slices"

	"github.com/sandevgo/tuskmem/internal/core"
)

// DefaultRRFK is the usual Reciprocal Rank Fusion damping constant.
const DefaultRRFK = 60

// FuseRRF merges ranked lists with Reciprocal Rank Fusion. An id at zero
// based rank r contributes 1/(k+r+1) per list it appears in; repeats
// inside one list count once, at their best rank. The result is sorted by
// fused score, then id.
func FuseRRF(k int, lists ...[]core.Ranked) []core.Ranked {
	scores := make(map[string]float64)
	for _, list := range lists {
		seen := make(map[string]struct{}, len(list))
		for r, item := range list {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			scores[item.ID] += 1.0 / float64(k+r+1)
		}
	}

	fused := make([]core.Ranked, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, core.Ranked{ID: id, Score: score})
	}
	slices.SortFunc(fused, func(a, b core.Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return fused
}

// Hit is a search result with its fused score.
type Hit struct {
	Memory core.Memory
	Score  float64
}

// sortHits orders by score, then importance, then recency, then id.
func sortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Memory.Importance, a.Memory.Importance); c != 0 {
			return c
		}
		if c := b.Memory.CreatedAt.Compare(a.Memory.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Memory.ID, b.Memory.ID)
	})
}
