// Package rag ties retrieval and answer generation together behind a
// per-user document slot.
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/generate"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// ErrNoDocument indicates a question was asked before any successful upload.
var ErrNoDocument = errors.New("no document uploaded")

// slot is the immutable snapshot of a user's current document. It is
// replaced wholesale on upload; the index inside is never mutated after
// build, so readers can use a snapshot without holding the lock.
type slot struct {
	doc    *models.Document
	chunks []models.Chunk
	index  *vector.FlatIndex
}

// Pipeline answers questions about each user's most recently uploaded
// document. Document state is keyed by user ID: uploads replace only the
// caller's slot and a question always observes the most recently completed
// upload for that user.
type Pipeline struct {
	retriever *retriever.Retriever
	generator generate.Generator
	topK      int
	cacheDir  string
	logger    *zap.Logger

	mu    sync.RWMutex
	slots map[string]*slot
}

// NewPipeline creates a pipeline with the given dependencies. cacheDir may be
// empty to disable on-disk index caching.
func NewPipeline(r *retriever.Retriever, g generate.Generator, topK int, cacheDir string, logger *zap.Logger) *Pipeline {
	if topK <= 0 {
		topK = 3
	}
	return &Pipeline{
		retriever: r,
		generator: g,
		topK:      topK,
		cacheDir:  cacheDir,
		logger:    logger,
		slots:     make(map[string]*slot),
	}
}

// Upload indexes the document at path and makes it the user's current
// document. On any indexing failure the user's prior document, if one
// exists, stays active and queryable.
func (p *Pipeline) Upload(ctx context.Context, userID, path, filename string) (*models.Document, error) {
	chunks, index, err := p.retriever.IndexDocument(ctx, path)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Filename:  filename,
		Path:      path,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	prior := p.slots[userID]
	p.slots[userID] = &slot{doc: doc, chunks: chunks, index: index}
	p.mu.Unlock()

	if p.cacheDir != "" {
		if err := index.Save(p.indexPath(doc.ID)); err != nil {
			p.logger.Warn("failed to cache index", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	if prior != nil {
		p.dropCachedIndex(prior.doc.ID)
	}

	p.logger.Info("document indexed",
		zap.String("document_id", doc.ID),
		zap.String("user_id", userID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
	)
	return doc, nil
}

// Ask retrieves the top chunks for the question from the user's current
// document and generates an answer. Returns the document the answer was
// produced against. Fails with ErrNoDocument before any retrieval work when
// the user has no indexed document.
func (p *Pipeline) Ask(ctx context.Context, userID, question string) (*models.Answer, *models.Document, error) {
	p.mu.RLock()
	s, ok := p.slots[userID]
	p.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNoDocument
	}

	result, err := p.retriever.Retrieve(ctx, question, s.chunks, s.index, p.topK)
	if err != nil {
		return nil, s.doc, fmt.Errorf("retrieve: %w", err)
	}

	answer, err := p.generator.Generate(ctx, question, result.Texts())
	if err != nil {
		return nil, s.doc, err
	}

	p.logger.Debug("question answered",
		zap.String("user_id", userID),
		zap.String("document_id", s.doc.ID),
		zap.String("question", utils.Truncate(question, 120)),
		zap.Int("context_chunks", len(result.Texts())),
	)

	return &models.Answer{
		Question: question,
		Text:     answer,
		Context:  result.Texts(),
	}, s.doc, nil
}

// Current returns the user's active document, if any.
func (p *Pipeline) Current(userID string) (*models.Document, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.slots[userID]
	if !ok {
		return nil, false
	}
	return s.doc, true
}

// Evict removes the user's current document and its cached index.
func (p *Pipeline) Evict(userID string) bool {
	p.mu.Lock()
	s, ok := p.slots[userID]
	delete(p.slots, userID)
	p.mu.Unlock()
	if ok {
		p.dropCachedIndex(s.doc.ID)
	}
	return ok
}

// IndexSize returns the number of indexed vectors for the user's current
// document, or 0 when none.
func (p *Pipeline) IndexSize(userID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.slots[userID]; ok {
		return s.index.Size()
	}
	return 0
}

func (p *Pipeline) indexPath(docID string) string {
	return filepath.Join(p.cacheDir, docID+".idx")
}

func (p *Pipeline) dropCachedIndex(docID string) {
	if p.cacheDir == "" {
		return
	}
	if err := os.Remove(p.indexPath(docID)); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove cached index", zap.String("document_id", docID), zap.Error(err))
	}
}
