// Package storage defines the persistence interface for profiles, documents,
// and query audit records.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines persistence operations. Failures here must not fail the
// primary upload/answer operations; callers log and continue.
type Storage interface {
	// Profile operations
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)

	// Document metadata operations
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// Query audit operations
	RecordQuery(ctx context.Context, record *models.QueryRecord) error
	ListQueries(ctx context.Context, userID string, limit int) ([]*models.QueryRecord, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountQueries(ctx context.Context) (int64, error)

	Close() error
}
