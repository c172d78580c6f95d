package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// ProviderConfig holds credentials and endpoints for every remote backend.
type ProviderConfig struct {
	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaAPIKey  string `env:"OLLAMA_API_KEY"`

	VoyageBaseURL string `env:"VOYAGE_BASE_URL" envDefault:"https://api.voyageai.com"`
	VoyageAPIKey  string `env:"VOYAGE_API_KEY"`

	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`

	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`

	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api"`
	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`

	CustomOpenAIBaseURL string `env:"CUSTOM_OPENAI_BASE_URL"`
	CustomOpenAIAPIKey  string `env:"CUSTOM_OPENAI_API_KEY"`
}

func NewProviderConfig(ctx context.Context) *ProviderConfig {
	c, err := ParseProviderConfig(env.Options{})
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Provider config")
	}
	return c
}

func ParseProviderConfig(opts env.Options) (*ProviderConfig, error) {
	c := &ProviderConfig{}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, err
	}
	return c, nil
}
