package models

import "time"

// Identity is the verified caller identity extracted from a bearer token.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
}

// Answer is a generated answer together with the question and the retrieved
// context that produced it.
type Answer struct {
	Question string   `json:"user_query"`
	Text     string   `json:"answer"`
	Context  []string `json:"-"`
}

// QueryRecord is the audit row persisted after a question is answered.
type QueryRecord struct {
	ID         string    `json:"id" db:"id"`
	Question   string    `json:"question" db:"question"`
	Answer     string    `json:"answer" db:"answer"`
	UserID     string    `json:"user_id" db:"user_id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
