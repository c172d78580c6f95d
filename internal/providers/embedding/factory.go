package embedding

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// NewProvider builds the named embedding backend.
func NewProvider(name, model string, emb *config.EmbeddingConfig, keys *config.ProviderConfig) (core.EmbeddingProvider, error) {
	switch name {
	case "ollama":
		return NewOllama(keys.OllamaBaseURL, keys.OllamaAPIKey, model, emb.Timeout), nil
	case "voyage":
		if keys.VoyageAPIKey == "" {
			return nil, fmt.Errorf("VOYAGE_API_KEY is required for the voyage embedding provider")
		}
		return NewVoyage(keys.VoyageBaseURL, keys.VoyageAPIKey, model, emb.Dimension, emb.Timeout), nil
	case "openai":
		return NewOpenAI(keys.OpenAIBaseURL, keys.OpenAIAPIKey, model, emb.Dimension, emb.Timeout), nil
	case "custom":
		return NewOpenAI(keys.CustomOpenAIBaseURL, keys.CustomOpenAIAPIKey, model, emb.Dimension, emb.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", name)
	}
}

// NewServiceFromConfig wires the primary and optional fallback providers.
func NewServiceFromConfig(ctx context.Context, emb *config.EmbeddingConfig, keys *config.ProviderConfig) (*Service, error) {
	primary, err := NewProvider(emb.Provider, emb.Model, emb, keys)
	if err != nil {
		return nil, err
	}

	var fallback core.EmbeddingProvider
	if emb.FallbackProvider != "" {
		fallback, err = NewProvider(emb.FallbackProvider, emb.FallbackModel, emb, keys)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
	}

	ev := log.FromCtx(ctx).Info().
		Str("provider", primary.Model()).
		Int("dimension", emb.Dimension)
	if fallback != nil {
		ev = ev.Str("fallback", fallback.Model())
	}
	ev.Msg("starting embedding service")

	return NewService(primary, fallback, *emb)
}
