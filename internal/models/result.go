package models

// ScoredChunk is a retrieved chunk with its distance to the query vector.
// Lower distance means more relevant.
type ScoredChunk struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// RetrievalResult is an ordered sequence of scored chunks, ascending by
// distance (nearest first).
type RetrievalResult []ScoredChunk

// Texts returns the chunk texts in retrieval order.
func (r RetrievalResult) Texts() []string {
	texts := make([]string, len(r))
	for i, sc := range r {
		texts[i] = sc.Chunk.Text
	}
	return texts
}
