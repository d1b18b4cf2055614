package chunker

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Window splits each page into overlapping word windows. Windows never span
// page boundaries so a chunk always maps to a single page.
type Window struct {
	chunkSize    int
	chunkOverlap int
}

// NewWindow creates a window chunker with the given size and overlap (in words).
func NewWindow(chunkSize, chunkOverlap int) *Window {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Window{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits pages into overlapping word-window chunks.
func (w *Window) Chunk(pages []string) []models.Chunk {
	var chunks []models.Chunk
	step := w.chunkSize - w.chunkOverlap
	if step <= 0 {
		step = 1
	}
	for page, text := range pages {
		words := strings.Fields(text)
		for i := 0; i < len(words); i += step {
			end := i + w.chunkSize
			if end > len(words) {
				end = len(words)
			}
			chunks = append(chunks, models.Chunk{
				Ordinal: len(chunks),
				Page:    page,
				Text:    strings.Join(words[i:end], " "),
			})
			if end >= len(words) {
				break
			}
		}
	}
	return chunks
}
