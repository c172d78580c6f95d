package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/providers/embedding"
	"github.com/sandevgo/tuskmem/internal/providers/llm"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/sandevgo/tuskmem/internal/storage/vector"
	"github.com/sandevgo/tuskmem/pkg/conv"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/srv"
)

// App holds the wired memory subsystem for one process.
type App struct {
	Store     *memory.Store
	Searcher  *memory.Searcher
	Extractor *memory.Extractor
	Queue     *memory.Queue
	Reembed   *memory.ReembedWorker
	Fetcher   *conv.Fetcher

	// cleanups release storage and providers, run in reverse order
	cleanups []srv.Service
}

// NewApp wires storage, embedding, search and, when withExtraction is set,
// the LLM extraction pipeline.
func NewApp(ctx context.Context, withExtraction bool) (*App, error) {
	logger := log.FromCtx(ctx)

	// init env
	appCfg := config.NewAppConfig(ctx)
	if err := initEnv(ctx, appCfg.GetEnvPath()); err != nil {
		return nil, fmt.Errorf("failed to init env: %w", err)
	}

	// 1. Configuration
	embCfg := config.NewEmbeddingConfig(ctx)
	searchCfg := config.NewSearchConfig(ctx)
	keys := config.NewProviderConfig(ctx)

	app := &App{}

	// 2. Storage
	if err := os.MkdirAll(appCfg.GetRuntimePath(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}
	db, err := initStorage(ctx, appCfg, embCfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.cleanups = append(app.cleanups, srv.NewCleanup(db.Close))

	memoriesRepo := sqlite.NewMemoryRepo(db, embCfg.Dimension)
	messagesRepo := sqlite.NewMessagesRepo(db)
	lexical := sqlite.NewLexicalIndex(db)

	index, err := vector.NewChromemIndex()
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	// 3. Embedding
	embedder, err := embedding.NewServiceFromConfig(ctx, embCfg, keys)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	app.cleanups = append(app.cleanups, srv.NewCleanup(func() error {
		embedder.Close()
		return nil
	}))

	// 4. Memory services
	app.Store = memory.NewStore(memoriesRepo, index, embedder, embCfg.Dimension)

	// the vector index is in-memory; rebuild it from the canonical store
	n, err := app.Store.SyncIndex(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	logger.Debug().Int("memories", n).Msg("vector index loaded")

	app.Searcher = memory.NewSearcher(app.Store, embedder, index, lexical, *searchCfg)
	app.Reembed = memory.NewReembedWorker(app.Store, embCfg.ReembedInterval, embCfg.ReembedBatch)
	app.Fetcher = conv.NewFetcher(core.TuskUserAgent)

	if !withExtraction {
		return app, nil
	}

	// 5. Extraction
	extCfg := config.NewExtractionConfig(ctx)
	primary, fallback, err := llm.NewExtractionProviders(ctx, extCfg, keys)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}

	app.Extractor = memory.NewExtractor(app.Store, messagesRepo, primary, fallback, *extCfg)
	app.Queue = memory.NewQueue(app.Extractor, extCfg.Workers, extCfg.QueueSize, extCfg.Timeout)

	return app, nil
}

// Services returns the background workers followed by the cleanups, in
// the order srv.ShutdownServices expects.
func (a *App) Services() []srv.Service {
	services := make([]srv.Service, 0, len(a.cleanups)+2)
	services = append(services, a.cleanups...)
	services = append(services, a.Reembed)
	if a.Queue != nil {
		services = append(services, a.Queue)
	}
	return services
}

// Close releases storage and providers for one-shot commands.
func (a *App) Close(ctx context.Context) {
	logger := log.FromCtx(ctx)
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i].Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("cleanup failed")
		}
	}
	a.cleanups = nil
}

func initStorage(ctx context.Context, cfg *config.AppConfig, dim int) (*sql.DB, error) {
	db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}

	// the dimension is pinned on first start; a later change means re-embedding
	if err := sqlite.EnsureDimension(ctx, db, dim); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initEnv(ctx context.Context, envFile string) error {
	logger := log.FromCtx(ctx)

	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}

// withApp runs fn against a freshly wired App and releases it afterwards.
func withApp(ctx context.Context, withExtraction bool, fn func(ctx context.Context, app *App) error) error {
	ctx, flushLog := setupLogger(ctx)
	defer flushLog()

	app, err := NewApp(ctx, withExtraction)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	return fn(ctx, app)
}
