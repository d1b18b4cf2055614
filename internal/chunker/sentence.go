package chunker

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Sentence splits each page on the period-space delimiter and keeps the
// resulting pieces as chunks, in page order.
type Sentence struct{}

// NewSentence returns a sentence-boundary chunker.
func NewSentence() *Sentence {
	return &Sentence{}
}

// Chunk splits pages into sentence-sized chunks.
func (s *Sentence) Chunk(pages []string) []models.Chunk {
	var chunks []models.Chunk
	for page, text := range pages {
		for _, piece := range strings.Split(text, ". ") {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Ordinal: len(chunks),
				Page:    page,
				Text:    piece,
			})
		}
	}
	return chunks
}
