// Package embeddings provides vector embedding providers for memory search.
package embeddings

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed generates embeddings for the given texts, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// ModelName returns the model identifier, used as a cache key component.
	ModelName() string
}

// New returns the named provider. model overrides the provider default when
// non-empty.
func New(name, model string) (Provider, error) {
	switch name {
	case "openai", "":
		return NewOpenAI(model), nil
	case "ollama":
		return NewOllama(model), nil
	case "voyage":
		return NewVoyage(model), nil
	case "mock":
		return NewMock(384), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", name)
	}
}
