// Package vector provides exact nearest-neighbor search over chunk embeddings.
package vector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

// ErrEmptyIndex indicates a search against an index with no vectors.
var ErrEmptyIndex = errors.New("vector index is empty")

// ErrDimensionMismatch indicates a vector whose length does not match the
// index dimension. This is a misconfiguration, not a transient failure.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Result is a single nearest-neighbor hit. Position is the ordinal of the
// vector at Add time, which by the retriever invariant is also the chunk
// ordinal. Distance is squared Euclidean; lower is closer.
type Result struct {
	Position int
	Distance float64
}

// FlatIndex is an exact brute-force squared-Euclidean nearest-neighbor index.
// Vectors keep their insertion order; Search ties are broken by that order.
// Safe for concurrent use.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an index for vectors of the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &FlatIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Add appends vectors to the index in order. Every vector must match the
// index dimension; on mismatch nothing is added.
func (x *FlatIndex) Add(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != x.dimensions {
			return fmt.Errorf("%w: vector %d has %d, index expects %d", ErrDimensionMismatch, i, len(vec), x.dimensions)
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, vec := range vectors {
		cp := make([]float32, x.dimensions)
		copy(cp, vec)
		x.vectors = append(x.vectors, cp)
	}
	return nil
}

// Search returns the k nearest vectors to query by squared Euclidean
// distance, ascending, ties broken by insertion order. k is clamped to the
// index size. Searching an empty index returns ErrEmptyIndex.
func (x *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), x.dimensions)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", k)
	}
	if k > len(x.vectors) {
		k = len(x.vectors)
	}

	results := make([]Result, len(x.vectors))
	for i, vec := range x.vectors {
		results[i] = Result{Position: i, Distance: utils.SquaredL2(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results[:k], nil
}

// Dimensions returns the index dimension.
func (x *FlatIndex) Dimensions() int {
	return x.dimensions
}

// Size returns the number of vectors in the index.
func (x *FlatIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}
