package config

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type SearchConfig struct {
	RRFK int `env:"SEARCH_RRF_K" envDefault:"60"`
	// result list sizes requested from each backend, as multiples of limit
	VectorOverfetch  int `env:"SEARCH_VECTOR_OVERFETCH" envDefault:"10"`
	LexicalOverfetch int `env:"SEARCH_LEXICAL_OVERFETCH" envDefault:"2"`
	// ANN breadth hint passed to the vector backend, multiple of its result size
	CandidateFactor int  `env:"SEARCH_CANDIDATE_FACTOR" envDefault:"10"`
	LexicalFallback bool `env:"SEARCH_LEXICAL_FALLBACK" envDefault:"false"`
	DefaultLimit    int  `env:"SEARCH_DEFAULT_LIMIT" envDefault:"10"`
	MaxLimit        int  `env:"SEARCH_MAX_LIMIT" envDefault:"100"`
}

func NewSearchConfig(ctx context.Context) *SearchConfig {
	c, err := ParseSearchConfig(env.Options{})
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Search config")
	}
	return c
}

func ParseSearchConfig(opts env.Options) (*SearchConfig, error) {
	c := &SearchConfig{}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c SearchConfig) Validate() error {
	if c.RRFK <= 0 {
		return fmt.Errorf("SEARCH_RRF_K must be positive, got %d", c.RRFK)
	}
	if c.VectorOverfetch <= 0 || c.LexicalOverfetch <= 0 || c.CandidateFactor <= 0 {
		return fmt.Errorf("search overfetch factors must be positive")
	}
	if c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("invalid search limits: default %d, max %d", c.DefaultLimit, c.MaxLimit)
	}
	return nil
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RRFK:             60,
		VectorOverfetch:  10,
		LexicalOverfetch: 2,
		CandidateFactor:  10,
		DefaultLimit:     10,
		MaxLimit:         100,
	}
}
