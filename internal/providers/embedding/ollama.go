package embedding

import (
	"context"
	"fmt"
	"time"
)

type Ollama struct {
	baseProvider
}

func NewOllama(baseURL, apiKey, model string, timeout time.Duration) *Ollama {
	return &Ollama{baseProvider: newBaseProvider(baseURL, apiKey, model, timeout)}
}

func (o *Ollama) Model() string {
	return "ollama/" + o.model
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]any{
		"model": o.model,
		"input": texts,
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := o.postJSON(ctx, "/api/embed", payload, bearer(o.apiKey), &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return result.Embeddings, nil
}
