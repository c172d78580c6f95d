package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// NewProvider creates the named chat completion backend.
func NewProvider(name, model string, keys *config.ProviderConfig, timeout time.Duration) (core.AIProvider, error) {
	switch name {
	case "openai":
		return NewOpenAI(keys.OpenAIBaseURL, keys.OpenAIAPIKey, model, timeout), nil
	case "anthropic":
		if keys.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return NewAnthropic(keys.AnthropicBaseURL, keys.AnthropicAPIKey, model, timeout), nil
	case "openrouter":
		if keys.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY is required for the openrouter provider")
		}
		return NewOpenRouter(keys.OpenRouterBaseURL, keys.OpenRouterAPIKey, model, timeout), nil
	case "ollama":
		return NewOllama(keys.OllamaBaseURL, keys.OllamaAPIKey, model, timeout), nil
	case "custom":
		if keys.CustomOpenAIBaseURL == "" {
			return nil, fmt.Errorf("CUSTOM_OPENAI_BASE_URL is required for the custom provider")
		}
		return NewCustomOpenAI(keys.CustomOpenAIBaseURL, keys.CustomOpenAIAPIKey, model, timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", name)
	}
}

// NewExtractionProviders builds the primary extraction model and the
// optional fallback. fallback is nil when none is configured.
func NewExtractionProviders(ctx context.Context, cfg *config.ExtractionConfig, keys *config.ProviderConfig) (primary, fallback core.AIProvider, err error) {
	primary, err = NewProvider(cfg.Provider, cfg.Model, keys, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}

	ev := log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model)

	if cfg.FallbackProvider != "" {
		fallback, err = NewProvider(cfg.FallbackProvider, cfg.FallbackModel, keys, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback: %w", err)
		}
		ev = ev.Str("fallback", cfg.FallbackProvider+"/"+cfg.FallbackModel)
	}
	ev.Msg("starting llm provider")

	return primary, fallback, nil
}
