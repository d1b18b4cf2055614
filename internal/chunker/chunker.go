// Package chunker splits extracted page texts into ordered retrievable chunks.
package chunker

import (
	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits ordered page texts into an ordered sequence of chunks.
// Implementations must be deterministic and order-preserving: chunk ordinals
// are dense from 0 and follow original page and text order. A page with no
// extractable text contributes no chunks.
type Chunker interface {
	Chunk(pages []string) []models.Chunk
}

// Mode names accepted by New.
const (
	ModeWindow   = "window"
	ModeSentence = "sentence"
)

// New returns the chunker for the given mode. Unknown modes fall back to the
// sliding window chunker.
func New(mode string, chunkSize, chunkOverlap int) Chunker {
	if mode == ModeSentence {
		return NewSentence()
	}
	return NewWindow(chunkSize, chunkOverlap)
}
