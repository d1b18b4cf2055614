package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperjump/kotae/internal/config"
)

// RemoteEmbedder wraps a langchaingo embedder over an OpenAI-compatible or
// Ollama endpoint. The client is built once and reused for the life of the
// process.
type RemoteEmbedder struct {
	impl       *embeddings.EmbedderImpl
	dimensions int
}

// NewRemoteEmbedder builds the embedding client for the configured provider.
func NewRemoteEmbedder(cfg *config.EmbeddingConfig) (*RemoteEmbedder, error) {
	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.Provider {
	case "openai":
		client, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
	case "ollama":
		client, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init embedding client: %w", err)
	}

	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &RemoteEmbedder{impl: impl, dimensions: cfg.Dimensions}, nil
}

// Embed returns the embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := e.checkDimensions(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch returns one embedding per input text, in input order.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for _, vec := range vecs {
		if err := e.checkDimensions(vec); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (e *RemoteEmbedder) Close() error {
	return nil
}

func (e *RemoteEmbedder) checkDimensions(vec []float32) error {
	if len(vec) != e.dimensions {
		return fmt.Errorf("%w: model returned %d, configured %d", ErrDimensionMismatch, len(vec), e.dimensions)
	}
	return nil
}
