package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type ExtractionConfig struct {
	Provider         string `env:"EXTRACTION_PROVIDER" envDefault:"ollama"`
	Model            string `env:"EXTRACTION_MODEL" envDefault:"llama3.2:latest"`
	FallbackProvider string `env:"EXTRACTION_FALLBACK_PROVIDER"`
	FallbackModel    string `env:"EXTRACTION_FALLBACK_MODEL"`

	DedupThreshold    float64 `env:"EXTRACTION_DEDUP_THRESHOLD" envDefault:"0.92"`
	GlobalDedup       bool    `env:"EXTRACTION_GLOBAL_DEDUP" envDefault:"false"`
	BatchWindow       int     `env:"EXTRACTION_BATCH_WINDOW" envDefault:"10"`
	MaxTokens         int     `env:"EXTRACTION_MAX_TOKENS" envDefault:"3000"`
	DefaultConfidence float64 `env:"EXTRACTION_DEFAULT_CONFIDENCE" envDefault:"0.8"`

	Workers   int           `env:"EXTRACTION_WORKERS" envDefault:"2"`
	QueueSize int           `env:"EXTRACTION_QUEUE_SIZE" envDefault:"64"`
	Timeout   time.Duration `env:"EXTRACTION_TIMEOUT" envDefault:"2m"`
}

func NewExtractionConfig(ctx context.Context) *ExtractionConfig {
	c, err := ParseExtractionConfig(env.Options{})
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Extraction config")
	}
	return c
}

func ParseExtractionConfig(opts env.Options) (*ExtractionConfig, error) {
	c := &ExtractionConfig{}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c ExtractionConfig) Validate() error {
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("EXTRACTION_DEDUP_THRESHOLD must be in (0,1], got %v", c.DedupThreshold)
	}
	if c.DefaultConfidence < 0 || c.DefaultConfidence > 1 {
		return fmt.Errorf("EXTRACTION_DEFAULT_CONFIDENCE must be in [0,1], got %v", c.DefaultConfidence)
	}
	if c.BatchWindow <= 0 {
		return fmt.Errorf("EXTRACTION_BATCH_WINDOW must be positive, got %d", c.BatchWindow)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("EXTRACTION_MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return fmt.Errorf("extraction workers and queue size must be positive")
	}
	return nil
}

func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		Provider:          "ollama",
		Model:             "llama3.2:latest",
		DedupThreshold:    0.92,
		BatchWindow:       10,
		MaxTokens:         3000,
		DefaultConfidence: 0.8,
		Workers:           2,
		QueueSize:         64,
		Timeout:           2 * time.Minute,
	}
}
