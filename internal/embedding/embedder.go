// Package embedding provides text embedding via a remote model and caching.
package embedding

import (
	"context"
	"errors"
)

// ErrDimensionMismatch indicates the model returned a vector whose length does
// not match the configured dimension. This is a fatal misconfiguration, not a
// transient failure.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder produces vector embeddings for text. The underlying model is
// loaded once and implementations are safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
