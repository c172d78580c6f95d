package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sandevgo/tuskmem/internal/core"
)

// OpenAI talks to any OpenAI-compatible embeddings endpoint.
type OpenAI struct {
	client    openai.Client
	model     string
	dimension int
}

func NewOpenAI(baseURL, apiKey, model string, dimension int, timeout time.Duration) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithHeader("User-Agent", core.TuskUserAgent),
		// retries are done by the embedding service
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAI{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}
}

func (o *OpenAI) Model() string {
	return "openai/" + o.model
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(o.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.dimension > 0 {
		params.Dimensions = openai.Int(int64(o.dimension))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai embed: %w", &StatusError{Code: apiErr.StatusCode, Body: apiErr.Message})
		}
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vecs) {
			return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
		}
		vecs[d.Index] = toFloat32(d.Embedding)
	}
	return vecs, nil
}
