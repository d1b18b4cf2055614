// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// ragPipeline is the subset of the pipeline the HTTP layer needs.
type ragPipeline interface {
	Upload(ctx context.Context, userID, path, filename string) (*models.Document, error)
	Ask(ctx context.Context, userID, question string) (*models.Answer, *models.Document, error)
	Current(userID string) (*models.Document, bool)
	Evict(userID string) bool
	IndexSize(userID string) int
}

// tokenVerifier validates a bearer token and returns the caller identity.
type tokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.Identity, error)
}

// Server is the HTTP server for the Kotae API.
type Server struct {
	pipeline ragPipeline
	verifier tokenVerifier
	storage  storage.Storage
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline ragPipeline,
	verifier tokenVerifier,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		verifier: verifier,
		storage:  store,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.config.Server.RequestTimeoutSeconds) * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/upload", s.handleUpload)
		r.Post("/question", s.handleQuestion)
		r.Get("/documents", s.handleGetDocument)
		r.Delete("/documents", s.handleDeleteDocument)
		r.Get("/queries", s.handleListQueries)
		r.Post("/signup", s.handleSignup)
		r.Get("/status", s.handleStatus)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
