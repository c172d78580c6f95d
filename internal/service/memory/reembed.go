package memory

import (
	"context"
	"time"

	"github.com/sandevgo/tuskmem/pkg/log"
)

const (
	ReembedBatchSize    = 64
	ReembedPollInterval = 10 * time.Minute
)

// ReembedWorker migrates memories embedded by another model to the current
// one, a batch at a time.
type ReembedWorker struct {
	store     *Store
	interval  time.Duration
	batchSize int
}

func NewReembedWorker(store *Store, interval time.Duration, batchSize int) *ReembedWorker {
	if interval <= 0 {
		interval = ReembedPollInterval
	}
	if batchSize <= 0 {
		batchSize = ReembedBatchSize
	}
	return &ReembedWorker{
		store:     store,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (w *ReembedWorker) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "reembed_worker").Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("starting re-embedding worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("re-embedding pass failed")
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down re-embedding worker")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *ReembedWorker) Shutdown(ctx context.Context) error {
	return nil
}

// RunOnce re-embeds stale memories until none are left or a batch makes
// no progress. It returns the number of rewritten records.
func (w *ReembedWorker) RunOnce(ctx context.Context) (int, error) {
	var total int
	for {
		stale, err := w.store.Stale(ctx, w.batchSize)
		if err != nil {
			return total, err
		}
		if len(stale) == 0 {
			return total, nil
		}

		n, err := w.store.Reembed(ctx, stale)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 || len(stale) < w.batchSize {
			if total > 0 {
				log.FromCtx(ctx).Info().Int("count", total).Msg("memories re-embedded")
			}
			return total, nil
		}
	}
}
