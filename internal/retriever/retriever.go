// Package retriever orchestrates extraction, chunking, embedding, and
// nearest-neighbor search for a document.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// ErrDocumentRead indicates the document could not be read or parsed.
var ErrDocumentRead = errors.New("document could not be read")

// ErrNoContent indicates the document yielded zero extractable chunks.
var ErrNoContent = errors.New("document has no extractable content")

// Retriever turns a document into a queryable chunk sequence plus vector
// index, and a query into a ranked set of chunks.
type Retriever struct {
	extractor *extract.Extractor
	chunker   chunker.Chunker
	embedder  embedding.Embedder
	logger    *zap.Logger
}

// New creates a retriever with the given dependencies.
func New(extractor *extract.Extractor, c chunker.Chunker, embedder embedding.Embedder, logger *zap.Logger) *Retriever {
	return &Retriever{
		extractor: extractor,
		chunker:   c,
		embedder:  embedder,
		logger:    logger,
	}
}

// IndexDocument reads the document at path, chunks it, embeds every chunk,
// and builds the vector index. The i-th index entry corresponds exactly to
// the i-th returned chunk.
func (r *Retriever) IndexDocument(ctx context.Context, path string) ([]models.Chunk, *vector.FlatIndex, error) {
	pages, err := r.extractor.Pages(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDocumentRead, err)
	}

	chunks := r.chunker.Chunk(pages)
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoContent, path)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed chunks: %w", err)
	}

	index, err := vector.NewFlatIndex(r.embedder.Dimensions())
	if err != nil {
		return nil, nil, err
	}
	if err := index.Add(vectors); err != nil {
		return nil, nil, fmt.Errorf("build index: %w", err)
	}

	r.logger.Debug("indexed document",
		zap.String("path", path),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, index, nil
}

// Retrieve embeds the query, searches the index, and maps result positions
// back to chunk text. chunks must be the sequence the index was built from.
func (r *Retriever) Retrieve(ctx context.Context, query string, chunks []models.Chunk, index *vector.FlatIndex, topK int) (models.RetrievalResult, error) {
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := index.Search(queryVec, topK)
	if err != nil {
		return nil, err
	}

	result := make(models.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Position < 0 || hit.Position >= len(chunks) {
			return nil, fmt.Errorf("index position %d outside chunk sequence of %d", hit.Position, len(chunks))
		}
		result = append(result, models.ScoredChunk{
			Chunk:    chunks[hit.Position],
			Distance: hit.Distance,
		})
	}
	return result, nil
}
