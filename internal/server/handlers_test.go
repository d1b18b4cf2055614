package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/auth"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/generate"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/retriever"
)

type fakePipeline struct {
	uploadFn func(ctx context.Context, userID, path, filename string) (*models.Document, error)
	askFn    func(ctx context.Context, userID, question string) (*models.Answer, *models.Document, error)
	current  *models.Document
	evicted  bool
}

func (f *fakePipeline) Upload(ctx context.Context, userID, path, filename string) (*models.Document, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, userID, path, filename)
	}
	return &models.Document{ID: "doc-1", OwnerID: userID, Filename: filename, Path: path}, nil
}

func (f *fakePipeline) Ask(ctx context.Context, userID, question string) (*models.Answer, *models.Document, error) {
	if f.askFn != nil {
		return f.askFn(ctx, userID, question)
	}
	return &models.Answer{Question: question, Text: "the answer", Context: []string{"ctx"}},
		&models.Document{ID: "doc-1", OwnerID: userID}, nil
}

func (f *fakePipeline) Current(userID string) (*models.Document, bool) {
	if f.current == nil {
		return nil, false
	}
	return f.current, true
}

func (f *fakePipeline) Evict(userID string) bool {
	had := f.current != nil
	f.current = nil
	f.evicted = true
	return had
}

func (f *fakePipeline) IndexSize(userID string) int { return 2 }

type fakeVerifier struct {
	identity *models.Identity
	err      error
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*models.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeStorage struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	docs     []*models.Document
	queries  []*models.QueryRecord

	recordErr error
	saveErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{profiles: make(map[string]*models.Profile)}
}

func (f *fakeStorage) UpsertProfile(ctx context.Context, p *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile not found: %s", id)
	}
	return p, nil
}

func (f *fakeStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return nil, errors.New("not found")
}

func (f *fakeStorage) RecordQuery(ctx context.Context, record *models.QueryRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, record)
	return nil
}

func (f *fakeStorage) ListQueries(ctx context.Context, userID string, limit int) ([]*models.QueryRecord, error) {
	return f.queries, nil
}

func (f *fakeStorage) CountDocuments(ctx context.Context) (int64, error) {
	return int64(len(f.docs)), nil
}

func (f *fakeStorage) CountQueries(ctx context.Context) (int64, error) {
	return int64(len(f.queries)), nil
}

func (f *fakeStorage) Close() error { return nil }

func newTestServer(t *testing.T, p ragPipeline, v tokenVerifier, st *fakeStorage) *Server {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Upload.Dir = t.TempDir()
	if p == nil {
		p = &fakePipeline{}
	}
	if v == nil {
		v = &fakeVerifier{identity: &models.Identity{Subject: "user-1", Email: "u@example.com"}}
	}
	if st == nil {
		st = newFakeStorage()
	}
	return NewServer(p, v, st, cfg, zap.NewNop())
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestUploadText(t *testing.T) {
	st := newFakeStorage()
	srv := newTestServer(t, nil, nil, st)

	body, contentType := multipartBody(t, "notes.txt", "The sky is blue. Water is wet.")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["filename"] != "notes.txt" || resp["status"] != "indexed" {
		t.Errorf("response = %v", resp)
	}
	if len(st.docs) != 1 {
		t.Errorf("expected document metadata persisted, got %d rows", len(st.docs))
	}
}

func TestUploadRejectsExtension(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	body, contentType := multipartBody(t, "payload.exe", "binary")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for disallowed extension", rec.Code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for missing file", rec.Code)
	}
}

func TestUploadStorageFailureStillSucceeds(t *testing.T) {
	st := newFakeStorage()
	st.saveErr = errors.New("database is down")
	srv := newTestServer(t, nil, nil, st)

	body, contentType := multipartBody(t, "notes.txt", "content")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("metadata persistence failure must not fail the upload, status = %d", rec.Code)
	}
}

func TestUploadIndexingFailure(t *testing.T) {
	p := &fakePipeline{
		uploadFn: func(ctx context.Context, userID, path, filename string) (*models.Document, error) {
			return nil, fmt.Errorf("%w: corrupt pdf", retriever.ErrDocumentRead)
		},
	}
	srv := newTestServer(t, p, nil, nil)

	body, contentType := multipartBody(t, "broken.pdf", "not a pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for unreadable document", rec.Code)
	}
}

func TestQuestion(t *testing.T) {
	st := newFakeStorage()
	srv := newTestServer(t, nil, nil, st)

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		bytes.NewBufferString(`{"question":"What color is the sky?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp questionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "the answer" || resp.Question != "What color is the sky?" || resp.Status != "success" {
		t.Errorf("response = %+v", resp)
	}
	if len(st.queries) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(st.queries))
	}
	if st.queries[0].Question != "What color is the sky?" || st.queries[0].UserID != "user-1" {
		t.Errorf("audit row = %+v", st.queries[0])
	}
}

func TestQuestionBeforeUpload(t *testing.T) {
	p := &fakePipeline{
		askFn: func(ctx context.Context, userID, question string) (*models.Answer, *models.Document, error) {
			return nil, nil, rag.ErrNoDocument
		},
	}
	st := newFakeStorage()
	srv := newTestServer(t, p, nil, st)

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		bytes.NewBufferString(`{"question":"anything?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d before any upload", rec.Code)
	}
	if len(st.queries) != 0 {
		t.Error("failed question must not be audited")
	}
}

func TestQuestionEmptyBody(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/question",
		bytes.NewBufferString(`{"question":"  "}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for blank question", rec.Code)
	}
}

func TestQuestionGenerationFailure(t *testing.T) {
	p := &fakePipeline{
		askFn: func(ctx context.Context, userID, question string) (*models.Answer, *models.Document, error) {
			return nil, &models.Document{ID: "doc-1"}, fmt.Errorf("%w: model timeout", generate.ErrGeneration)
		},
	}
	srv := newTestServer(t, p, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		bytes.NewBufferString(`{"question":"anything?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d for generation failure", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if retryable, _ := resp["retryable"].(bool); !retryable {
		t.Error("generation failure should be marked retryable")
	}
}

func TestQuestionAuditFailureStillAnswers(t *testing.T) {
	st := newFakeStorage()
	st.recordErr = errors.New("database is down")
	srv := newTestServer(t, nil, nil, st)

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		bytes.NewBufferString(`{"question":"anything?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit failure must not fail the answer, status = %d", rec.Code)
	}
}

func TestGetAndDeleteDocument(t *testing.T) {
	p := &fakePipeline{current: &models.Document{ID: "doc-1", Filename: "notes.txt"}}
	srv := newTestServer(t, p, nil, nil)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodDelete, "/api/documents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestSignup(t *testing.T) {
	st := newFakeStorage()
	srv := newTestServer(t, nil, nil, st)

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		bytes.NewBufferString(`{"name":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	p, ok := st.profiles["user-1"]
	if !ok {
		t.Fatal("profile not stored")
	}
	if p.Email != "u@example.com" || p.Name != "Ada" {
		t.Errorf("profile = %+v", p)
	}
}

func TestListQueries(t *testing.T) {
	st := newFakeStorage()
	st.queries = []*models.QueryRecord{
		{ID: "q1", Question: "first?", Answer: "a1", UserID: "user-1", DocumentID: "doc-1"},
	}
	srv := newTestServer(t, nil, nil, st)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/queries?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Queries []*models.QueryRecord `json:"queries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Queries) != 1 || resp.Queries[0].Question != "first?" {
		t.Errorf("queries = %+v", resp.Queries)
	}

	rec = doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/queries?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for bad limit", rec.Code)
	}
}

func TestUnauthorized(t *testing.T) {
	v := &fakeVerifier{err: fmt.Errorf("%w: bad signature", auth.ErrUnauthorized)}
	srv := newTestServer(t, nil, v, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		bytes.NewBufferString(`{"question":"anything?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d for rejected token", rec.Code)
	}
}

func TestMissingAuthorizationHeader(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d without credentials", rec.Code)
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	srv := newTestServer(t, nil, &fakeVerifier{err: auth.ErrUnauthorized}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if _, ok := resp["vector_index_size"]; !ok {
		t.Error("missing vector_index_size")
	}
}
