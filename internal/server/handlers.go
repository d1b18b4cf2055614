package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/auth"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generate"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/vector"
)

type contextKey string

const identityKey contextKey = "identity"

// authMiddleware verifies the bearer token and stores the caller identity in
// the request context. All failures produce 401.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid or missing credentials")
			return
		}
		identity, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.logger.Debug("authentication failed", zap.Error(err))
			s.respondError(w, http.StatusUnauthorized, "invalid or missing credentials")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom returns the identity stored by authMiddleware. Handlers behind
// the middleware can rely on it being present.
func identityFrom(ctx context.Context) *models.Identity {
	identity, _ := ctx.Value(identityKey).(*models.Identity)
	return identity
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	maxBytes := int64(s.config.Upload.MaxSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !s.extensionAllowed(filename) {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type, allowed: %s", strings.Join(s.config.Upload.AllowedExtensions, ", ")))
		return
	}

	if err := os.MkdirAll(s.config.Upload.Dir, 0755); err != nil {
		s.logger.Error("failed to create upload directory", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	path := filepath.Join(s.config.Upload.Dir, uuid.NewString()+"_"+filename)
	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error("failed to create upload file", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	doc, err := s.pipeline.Upload(r.Context(), identity.Subject, path, filename)
	if err != nil {
		_ = os.Remove(path)
		s.logger.Error("upload failed", zap.String("filename", filename), zap.Error(err))
		s.respondPipelineError(w, err)
		return
	}

	// Persistence is best-effort; the upload already succeeded.
	if err := s.storage.SaveDocument(r.Context(), doc); err != nil {
		s.logger.Warn("failed to persist document metadata", zap.String("document_id", doc.ID), zap.Error(err))
	}

	s.respondJSON(w, http.StatusCreated, map[string]string{
		"id":       doc.ID,
		"filename": doc.Filename,
		"status":   "indexed",
	})
}

type questionRequest struct {
	Question string `json:"question"`
}

type questionResponse struct {
	Question   string   `json:"user_query"`
	Answer     string   `json:"answer"`
	Status     string   `json:"status"`
	Context    []string `json:"context"`
	DocumentID string   `json:"document_id"`
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, doc, err := s.pipeline.Ask(r.Context(), identity.Subject, req.Question)
	if err != nil {
		s.logger.Error("question failed", zap.String("user_id", identity.Subject), zap.Error(err))
		s.respondPipelineError(w, err)
		return
	}

	// Audit after the answer exists; a logging failure never fails the request.
	record := &models.QueryRecord{
		ID:         uuid.NewString(),
		Question:   answer.Question,
		Answer:     answer.Text,
		UserID:     identity.Subject,
		DocumentID: doc.ID,
	}
	if err := s.storage.RecordQuery(r.Context(), record); err != nil {
		s.logger.Warn("failed to record query", zap.String("user_id", identity.Subject), zap.Error(err))
	}

	s.respondJSON(w, http.StatusOK, questionResponse{
		Question:   answer.Question,
		Answer:     answer.Text,
		Status:     "success",
		Context:    answer.Context,
		DocumentID: doc.ID,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	doc, ok := s.pipeline.Current(identity.Subject)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no document uploaded")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if !s.pipeline.Evict(identity.Subject) {
		s.respondError(w, http.StatusNotFound, "no document uploaded")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.storage.ListQueries(r.Context(), identity.Subject, limit)
	if err != nil {
		s.logger.Error("list queries failed", zap.String("user_id", identity.Subject), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list queries")
		return
	}
	if records == nil {
		records = []*models.QueryRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"queries": records})
}

type signupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	var req signupRequest
	if r.Body != nil {
		// Body is optional; name defaults to empty.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	profile := &models.Profile{
		ID:    identity.Subject,
		Email: identity.Email,
		Name:  req.Name,
	}
	if err := s.storage.UpsertProfile(r.Context(), profile); err != nil {
		s.logger.Error("signup failed", zap.String("user_id", identity.Subject), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}
	s.respondJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := identityFrom(ctx)

	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	queryCount, err := s.storage.CountQueries(ctx)
	if err != nil {
		s.logger.Error("status: count queries failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents":         docCount,
		"queries":           queryCount,
		"vector_index_size": s.pipeline.IndexSize(identity.Subject),
		"config": map[string]interface{}{
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_size":           s.config.Retrieval.ChunkSize,
			"chunk_overlap":        s.config.Retrieval.ChunkOverlap,
			"top_k":                s.config.Retrieval.TopK,
		},
	})
}

// respondPipelineError maps pipeline error kinds to HTTP statuses.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		s.respondError(w, http.StatusUnauthorized, "invalid or missing credentials")
	case errors.Is(err, rag.ErrNoDocument):
		s.respondError(w, http.StatusBadRequest, "no document uploaded")
	case errors.Is(err, retriever.ErrDocumentRead):
		s.respondError(w, http.StatusBadRequest, "could not read document")
	case errors.Is(err, retriever.ErrNoContent):
		s.respondError(w, http.StatusUnprocessableEntity, "document has no extractable text")
	case errors.Is(err, generate.ErrGeneration):
		s.respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":     "answer generation failed",
			"retryable": true,
		})
	case errors.Is(err, vector.ErrEmptyIndex),
		errors.Is(err, vector.ErrDimensionMismatch),
		errors.Is(err, embedding.ErrDimensionMismatch):
		s.respondError(w, http.StatusInternalServerError, "internal error")
	default:
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) extensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.config.Upload.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
