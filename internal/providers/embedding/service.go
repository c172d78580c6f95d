package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BatchError reports the inputs whose group could not be embedded. The
// remaining positions of the returned slice are still filled.
type BatchError struct {
	Failed []int
	Err    error
}

func (e *BatchError) Error() string {
	idx := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		idx[i] = strconv.Itoa(f)
	}
	return fmt.Sprintf("embedding failed for inputs [%s]: %v", strings.Join(idx, ","), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Service turns text into vectors of the configured dimension. It owns
// retries, provider fallback and the query cache.
type Service struct {
	primary  core.EmbeddingProvider
	fallback core.EmbeddingProvider
	cfg      config.EmbeddingConfig
	retrier  *retry.Retrier
	cache    *ristretto.Cache
	inflight singleflight.Group
}

func NewService(primary, fallback core.EmbeddingProvider, cfg config.EmbeddingConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	entries := max(cfg.CacheEntries, 1)
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	rc := retry.NewDefaultConfig()
	rc.MaxRetries = cfg.MaxRetries

	return &Service{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		retrier:  retry.NewRetrier(rc),
		cache:    cache,
	}, nil
}

// WithRetrier replaces the retry policy, mostly for tests.
func (s *Service) WithRetrier(r *retry.Retrier) *Service {
	s.retrier = r
	return s
}

func (s *Service) Close() {
	s.cache.Close()
}

// Model is the identifier stored with vectors from the primary provider.
func (s *Service) Model() string {
	return s.primary.Model()
}

func (s *Service) Dimension() int {
	return s.cfg.Dimension
}

// Embed returns the vector for a single text. Results from the primary
// provider are cached, and concurrent identical requests share one call.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.primary.Model() + "\x00" + text
	if v, ok := s.cache.Get(key); ok {
		return slices.Clone(v.([]float32)), nil
	}

	ch := s.inflight.DoChan(key, func() (any, error) {
		// shared by every waiter, so one caller's cancellation must not fail the rest
		embs, err := s.embedGroup(context.WithoutCancel(ctx), []string{text})
		if err != nil {
			return nil, err
		}
		if embs[0].Model == s.primary.Model() {
			s.cache.Set(key, embs[0].Vector, 1)
		}
		return embs[0].Vector, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]float32)), nil
	}
}

// EmbedBatch embeds texts in groups of at most batchSize, running up to the
// configured concurrency at once. Output order and length match the input.
// When some groups fail, a *BatchError names their inputs and the vectors
// of the other groups are returned alongside it.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([]core.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	out := make([]core.Embedding, len(texts))
	errs := make([]error, len(texts))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			embs, err := s.embedGroup(ctx, texts[start:end])
			if err != nil {
				for i := start; i < end; i++ {
					errs[i] = err
				}
				return nil
			}
			copy(out[start:end], embs)
			return nil
		})
	}
	_ = g.Wait()

	var batchErr *BatchError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if batchErr == nil {
			batchErr = &BatchError{Err: err}
		}
		batchErr.Failed = append(batchErr.Failed, i)
	}
	if batchErr != nil {
		if len(batchErr.Failed) == len(texts) {
			return nil, batchErr.Err
		}
		return out, batchErr
	}
	return out, nil
}

// embedGroup asks the primary provider and falls back on failure. A wrong
// vector size from the primary is a configuration error and is reported
// as is.
func (s *Service) embedGroup(ctx context.Context, texts []string) ([]core.Embedding, error) {
	vecs, err := s.call(ctx, s.primary, texts)
	if err == nil {
		return tag(vecs, s.primary.Model()), nil
	}
	if errors.Is(err, core.ErrDimensionMismatch) {
		return nil, fmt.Errorf("%s: %w", s.primary.Model(), err)
	}
	if s.fallback == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrEmbeddingUnavailable, s.primary.Model(), err)
	}

	log.FromCtx(ctx).Warn().Err(err).
		Str("primary", s.primary.Model()).
		Str("fallback", s.fallback.Model()).
		Msg("primary embedding provider failed, using fallback")

	vecs, ferr := s.call(ctx, s.fallback, texts)
	if ferr != nil {
		if errors.Is(ferr, core.ErrDimensionMismatch) {
			return nil, fmt.Errorf("%s: %w", s.fallback.Model(), ferr)
		}
		return nil, fmt.Errorf("%w: primary: %v; fallback: %w", core.ErrEmbeddingUnavailable, err, ferr)
	}
	return tag(vecs, s.fallback.Model()), nil
}

func (s *Service) call(ctx context.Context, p core.EmbeddingProvider, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := s.retrier.Do(ctx, func() error {
		var err error
		vecs, err = p.Embed(ctx, texts)
		if err != nil && !retryable(ctx, err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d inputs", len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := core.CheckDimension(v, s.cfg.Dimension); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

func tag(vecs [][]float32, model string) []core.Embedding {
	out := make([]core.Embedding, len(vecs))
	for i, v := range vecs {
		out[i] = core.Embedding{Vector: v, Model: model}
	}
	return out
}
