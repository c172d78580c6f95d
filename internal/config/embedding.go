package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// EmbeddingConfig is shared by every component that produces or stores
// vectors. Dimension must match the vector index; changing it requires a
// full re-embedding of the database.
type EmbeddingConfig struct {
	Dimension        int           `env:"EMBEDDING_DIMENSION" envDefault:"1024"`
	Provider         string        `env:"EMBEDDING_PROVIDER" envDefault:"ollama"`
	Model            string        `env:"EMBEDDING_MODEL" envDefault:"qwen3-embedding:0.6b"`
	FallbackProvider string        `env:"EMBEDDING_FALLBACK_PROVIDER"`
	FallbackModel    string        `env:"EMBEDDING_FALLBACK_MODEL" envDefault:"voyage-3-large"`
	BatchSize        int           `env:"EMBEDDING_BATCH_SIZE" envDefault:"32"`
	Concurrency      int           `env:"EMBEDDING_CONCURRENCY" envDefault:"4"`
	Timeout          time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"60s"`
	MaxRetries       int           `env:"EMBEDDING_MAX_RETRIES" envDefault:"1"`
	CacheEntries     int64         `env:"EMBEDDING_CACHE_ENTRIES" envDefault:"10000"`
	ReembedInterval  time.Duration `env:"EMBEDDING_REEMBED_INTERVAL" envDefault:"10m"`
	ReembedBatch     int           `env:"EMBEDDING_REEMBED_BATCH" envDefault:"64"`
}

func NewEmbeddingConfig(ctx context.Context) *EmbeddingConfig {
	c, err := ParseEmbeddingConfig(env.Options{})
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Embedding config")
	}
	return c
}

func ParseEmbeddingConfig(opts env.Options) (*EmbeddingConfig, error) {
	c := &EmbeddingConfig{}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c EmbeddingConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Dimension)
	}
	if c.Provider == "" {
		return fmt.Errorf("EMBEDDING_PROVIDER is required")
	}
	if c.FallbackProvider != "" && c.FallbackProvider == c.Provider && c.FallbackModel == c.Model {
		return fmt.Errorf("embedding fallback is identical to the primary provider")
	}
	if c.BatchSize <= 0 || c.Concurrency <= 0 {
		return fmt.Errorf("embedding batch size and concurrency must be positive")
	}
	return nil
}

// ModelID identifies the primary model in stored records, e.g. "ollama/qwen3-embedding:0.6b".
func (c EmbeddingConfig) ModelID() string {
	return c.Provider + "/" + c.Model
}
