package llm

import (
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
)

type OpenRouter struct {
	*OpenAICompatible
}

func NewOpenRouter(baseURL, apiKey, model string, timeout time.Duration) *OpenRouter {
	return &OpenRouter{
		OpenAICompatible: NewOpenAICompatible(OpenAICompatibleConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      model,
			AuthHeader: "Authorization",
			AuthPrefix: "Bearer ",
			ExtraHeaders: map[string]string{
				"HTTP-Referer": core.TuskRepositoryURL,
				"X-Title":      core.TuskName,
			},
			Timeout: timeout,
		}),
	}
}
