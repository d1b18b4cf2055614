// Package models defines core data structures for documents, chunks, and answers.
package models

import "time"

// Document represents an uploaded document with metadata.
type Document struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id,omitempty" db:"owner_id"`
	Filename  string    `json:"filename" db:"filename"`
	Path      string    `json:"-" db:"path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Chunk is a contiguous span of extracted document text. Chunks are derived
// and immutable; Ordinal is the chunk's position in the document and must
// match the chunk's position in the vector index built from it.
type Chunk struct {
	Ordinal int    `json:"ordinal"`
	Page    int    `json:"page"`
	Text    string `json:"text"`
}

// Profile is a user profile row.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name,omitempty" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
