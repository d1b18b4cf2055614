// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents(owner_id);

	CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		user_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_queries_user_id ON queries(user_id);
	CREATE INDEX IF NOT EXISTS idx_queries_created_at ON queries(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertProfile inserts or updates a user profile row.
func (s *SQLiteStorage) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name, updated_at = excluded.updated_at`,
		profile.ID, profile.Email, profile.Name, profile.CreatedAt, profile.UpdatedAt,
	)
	return err
}

// GetProfile returns a profile by ID.
func (s *SQLiteStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Email, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveDocument inserts a document metadata row.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, filename, path, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Filename, doc.Path, doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document metadata row by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, filename, path, created_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.Path, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// RecordQuery inserts a query audit row.
func (s *SQLiteStorage) RecordQuery(ctx context.Context, record *models.QueryRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (id, question, answer, user_id, document_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Question, record.Answer, record.UserID, record.DocumentID, record.CreatedAt,
	)
	return err
}

// ListQueries returns the user's most recent audit rows, newest first.
func (s *SQLiteStorage) ListQueries(ctx context.Context, userID string, limit int) ([]*models.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, user_id, document_id, created_at
		 FROM queries WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &r.UserID, &r.DocumentID, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// CountDocuments returns the number of stored document rows.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountQueries returns the number of audit rows.
func (s *SQLiteStorage) CountQueries(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queries`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
