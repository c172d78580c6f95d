package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
	"golang.org/x/sync/errgroup"
)

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs hybrid retrieval: semantic and keyword backends are queried
// concurrently and their rankings fused with RRF.
type Searcher struct {
	store    *Store
	embedder QueryEmbedder
	vector   core.VectorIndex
	lexical  core.LexicalIndex
	cfg      config.SearchConfig
}

func NewSearcher(store *Store, embedder QueryEmbedder, vector core.VectorIndex, lexical core.LexicalIndex, cfg config.SearchConfig) *Searcher {
	return &Searcher{
		store:    store,
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		cfg:      cfg,
	}
}

// Search returns at most limit live memories matching filter, best first.
// One failing backend degrades to the other; access statistics are
// recorded only for the returned memories.
func (s *Searcher) Search(ctx context.Context, query string, filter core.Filter, limit int) ([]Hit, error) {
	logger := log.FromCtx(ctx)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	limit = s.clampLimit(limit)

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !s.cfg.LexicalFallback {
			if errors.Is(err, core.ErrEmbeddingUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
		}
		logger.Warn().Err(err).Msg("query embedding failed, serving lexical results only")
		emb = nil
	}

	var (
		vectorHits, lexicalHits []core.Ranked
		vectorErr, lexicalErr   error
		g                       errgroup.Group
	)

	if emb != nil {
		g.Go(func() error {
			n := limit * s.cfg.VectorOverfetch
			vectorHits, vectorErr = s.vector.QueryVector(ctx, emb, filter, n*s.cfg.CandidateFactor, n)
			return nil
		})
	} else {
		vectorErr = errVectorSkipped
	}
	g.Go(func() error {
		lexicalHits, lexicalErr = s.lexical.QueryText(ctx, query, filter, limit*s.cfg.LexicalOverfetch)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case vectorErr != nil && lexicalErr != nil:
		return nil, fmt.Errorf("%w: vector: %v; lexical: %v", core.ErrSearchUnavailable, vectorErr, lexicalErr)
	case vectorErr != nil && !errors.Is(vectorErr, errVectorSkipped):
		logger.Warn().Err(vectorErr).Msg("vector search failed, using lexical results only")
	case lexicalErr != nil:
		logger.Warn().Err(lexicalErr).Msg("lexical search failed, using vector results only")
	}

	fused := FuseRRF(s.cfg.RRFK, vectorHits, lexicalHits)
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fused))
	scores := make(map[string]float64, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
		scores[f.ID] = f.Score
	}

	memories, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	hits := make([]Hit, 0, len(memories))
	for _, m := range memories {
		// the index may be behind the canonical store
		if !filter.Matches(&m) {
			continue
		}
		hits = append(hits, Hit{Memory: m, Score: scores[m.ID]})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	if len(hits) > 0 {
		returned := make([]string, len(hits))
		for i, h := range hits {
			returned[i] = h.Memory.ID
		}
		if err := s.store.RecordAccess(ctx, returned...); err != nil {
			logger.Warn().Err(err).Msg("failed to record memory access")
		}
	}

	logger.Debug().
		Int("vector", len(vectorHits)).
		Int("lexical", len(lexicalHits)).
		Int("returned", len(hits)).
		Msg("hybrid search")

	return hits, nil
}

var errVectorSkipped = errors.New("no query embedding")

func (s *Searcher) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}
