package core

import "context"

// AIProvider is a chat completion backend used for memory extraction.
type AIProvider interface {
	Chat(ctx context.Context, history []Message) (Message, error)
}

// EmbeddingProvider turns texts into vectors, one per input and in order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Embedding is a vector tagged with the model that produced it.
type Embedding struct {
	Vector []float32
	Model  string
}
