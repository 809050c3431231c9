package embeddings

import (
	"context"
	"fmt"
)

// Embedder is the interface for embedding providers (Ollama, LMStudio, local hashing)
type Embedder interface {
	// Embed generates an embedding for a single text string
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple text strings in a single request
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Health checks if the service is available and the model is loaded
	Health(ctx context.Context) error
}

// NewEmbedder creates a new embedding client based on the provider type
// Supported providers: "ollama", "lmstudio", "hash". dims only applies to "hash".
func NewEmbedder(provider, baseURL, model string, dims int) (Embedder, error) {
	if baseURL == "" {
		baseURL = GetDefaultURL(provider)
	}
	if model == "" {
		model = GetDefaultModel(provider)
	}

	switch provider {
	case "ollama":
		return NewClient(baseURL, model), nil
	case "lmstudio":
		return NewLMStudioClient(baseURL, model), nil
	case "hash":
		return NewHashEmbedder(dims), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: ollama, lmstudio, hash)", provider)
	}
}

// GetDefaultURL returns the default base URL for a given provider
func GetDefaultURL(provider string) string {
	switch provider {
	case "ollama":
		return "http://localhost:11434"
	case "lmstudio":
		return "http://localhost:1234"
	default:
		return ""
	}
}

// GetDefaultModel returns the default model name for a given provider
func GetDefaultModel(provider string) string {
	switch provider {
	case "ollama":
		return "nomic-embed-text"
	case "lmstudio":
		return "text-embedding-nomic-embed-text-v1.5"
	default:
		return ""
	}
}
