package embedding

import (
	"context"
	"fmt"
	"time"
)

type Voyage struct {
	baseProvider
	dimension int
}

func NewVoyage(baseURL, apiKey, model string, dimension int, timeout time.Duration) *Voyage {
	return &Voyage{
		baseProvider: newBaseProvider(baseURL, apiKey, model, timeout),
		dimension:    dimension,
	}
}

func (v *Voyage) Model() string {
	return "voyage/" + v.model
}

func (v *Voyage) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]any{
		"model": v.model,
		"input": texts,
	}
	if v.dimension > 0 {
		payload["output_dimension"] = v.dimension
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := v.postJSON(ctx, "/v1/embeddings", payload, bearer(v.apiKey), &result); err != nil {
		return nil, fmt.Errorf("voyage embed: %w", err)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("voyage embed: index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
