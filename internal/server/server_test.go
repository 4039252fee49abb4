package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/ingest"
	"github.com/signalworks/siterag/internal/processor"
	"github.com/signalworks/siterag/internal/rag"
	"github.com/signalworks/siterag/internal/vectorstore"
	"github.com/signalworks/siterag/provider"
)

type stubEngine struct {
	resp          rag.Response
	err           error
	suggestions   []string
	cleared       []string
	sessions      []string
	searchResults []vectorstore.SearchResult
	searchQuery   string
	searchTopK    int
	searchFilter  vectorstore.Filter
}

func (s *stubEngine) ProcessQuery(ctx context.Context, sessionID, query string) (rag.Response, error) {
	s.sessions = append(s.sessions, sessionID)
	return s.resp, s.err
}

func (s *stubEngine) Search(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	s.searchQuery = query
	s.searchTopK = topK
	s.searchFilter = filter
	return s.searchResults, s.err
}

func (s *stubEngine) SuggestedQuestions(ctx context.Context) ([]string, error) {
	return s.suggestions, nil
}

func (s *stubEngine) ClearHistory(ctx context.Context, sessionID string) error {
	s.cleared = append(s.cleared, sessionID)
	return nil
}

func (s *stubEngine) History(ctx context.Context, sessionID string) ([]provider.Message, error) {
	return nil, nil
}

type stubStore struct {
	stats    vectorstore.Stats
	statsErr error
	resets   int
}

func (s *stubStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error) {
	return 0, nil
}
func (s *stubStore) Search(ctx context.Context, query string, topK int, filter vectorstore.Filter, threshold float64) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (s *stubStore) UpdateDocument(ctx context.Context, chunk processor.Chunk) error { return nil }
func (s *stubStore) Delete(ctx context.Context, ids []string) (int, error)           { return 0, nil }
func (s *stubStore) DeleteByURL(ctx context.Context, url string) (int, error)        { return 0, nil }
func (s *stubStore) Stats(ctx context.Context) (vectorstore.Stats, error)            { return s.stats, s.statsErr }
func (s *stubStore) Reset(ctx context.Context) error                                 { s.resets++; return nil }
func (s *stubStore) Close() error                                                    { return nil }

type stubIngestor struct {
	mu      sync.Mutex
	runs    int
	block   chan struct{}
	lastErr error
}

func (s *stubIngestor) Run(ctx context.Context) (ingest.Result, error) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return ingest.Result{PagesScraped: 1}, s.lastErr
}

func testServer(engine *stubEngine, store *stubStore, ing *stubIngestor) *echo.Echo {
	if engine == nil {
		engine = &stubEngine{}
	}
	if store == nil {
		store = &stubStore{}
	}
	if ing == nil {
		ing = &stubIngestor{}
	}
	cfg := config.ServerConfig{Address: ":0", AdminJWTSecret: "test-secret"}
	return New(engine, store, ing, cfg, nil).Echo()
}

func TestChatReturnsAnswerAndSession(t *testing.T) {
	engine := &stubEngine{
		resp: rag.Response{
			Answer:     "We operate pipelines.",
			Confidence: 0.8,
			Sources:    []rag.Source{{Title: "About", URL: "https://example.com/about", SimilarityScore: 0.9, PageType: "about"}},
		},
		suggestions: []string{"What is Acme?"},
	}
	e := testServer(engine, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"what do you do?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "We operate pipelines." || resp.Confidence != 0.8 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.SessionID == "" {
		t.Fatalf("session id not generated")
	}
	if len(resp.SuggestedQuestions) != 1 {
		t.Fatalf("suggestions = %v", resp.SuggestedQuestions)
	}
	if len(engine.sessions) != 1 || engine.sessions[0] != resp.SessionID {
		t.Fatalf("engine saw sessions %v", engine.sessions)
	}
}

func TestChatKeepsProvidedSession(t *testing.T) {
	engine := &stubEngine{resp: rag.Response{Answer: "ok"}}
	e := testServer(engine, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi","session_id":"s-42"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "s-42" {
		t.Fatalf("session id = %q", resp.SessionID)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	e := testServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatEngineFailureIsJSONError(t *testing.T) {
	engine := &stubEngine{err: errors.New("index offline")}
	e := testServer(engine, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("error field missing: %s", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	store := &stubStore{stats: vectorstore.Stats{TotalDocuments: 42, UniqueURLs: 7}}
	e := testServer(nil, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "operational" || resp.TotalDocuments != 42 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestClearHistory(t *testing.T) {
	engine := &stubEngine{}
	e := testServer(engine, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/clear-history", strings.NewReader(`{"session_id":"s-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(engine.cleared) != 1 || engine.cleared[0] != "s-1" {
		t.Fatalf("cleared = %v", engine.cleared)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := testServer(nil, nil, nil)

	for _, path := range []string{"/healthz", "/api/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestAdminIngestRequiresToken(t *testing.T) {
	ing := &stubIngestor{}
	e := testServer(nil, nil, ing)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/ingest", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ing.runs != 0 {
		t.Fatalf("ingest ran without auth")
	}
}

func TestAdminIngestWithToken(t *testing.T) {
	ing := &stubIngestor{}
	e := testServer(nil, nil, ing)

	token, err := SignAdminToken("ops", []byte("test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/ingest", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	deadline := time.After(time.Second)
	for {
		ing.mu.Lock()
		runs := ing.runs
		ing.mu.Unlock()
		if runs == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("ingest never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAdminIngestConflictsWhileRunning(t *testing.T) {
	block := make(chan struct{})
	ing := &stubIngestor{block: block}
	e := testServer(nil, nil, ing)

	token, _ := SignAdminToken("ops", []byte("test-secret"), time.Hour)

	first := httptest.NewRequest(http.MethodPost, "/api/admin/ingest", nil)
	first.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, first)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first request: expected 202, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/admin/ingest", nil)
	second.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, second)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second request: expected 409, got %d", rec.Code)
	}
	close(block)
}

func TestAdminResetWithToken(t *testing.T) {
	store := &stubStore{}
	e := testServer(nil, store, nil)

	token, _ := SignAdminToken("ops", []byte("test-secret"), time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/reset", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.resets != 1 {
		t.Fatalf("resets = %d", store.resets)
	}
}

func TestAdminSearchPassesQueryAndFilter(t *testing.T) {
	engine := &stubEngine{
		searchResults: []vectorstore.SearchResult{
			{ID: "a_chunk_0", Content: "pipeline maintenance", SimilarityScore: 0.91},
		},
	}
	e := testServer(engine, nil, nil)

	token, _ := SignAdminToken("ops", []byte("test-secret"), time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/search?q=maintenance&top_k=5&page_type=news", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "a_chunk_0" {
		t.Fatalf("resp = %+v", resp)
	}
	if engine.searchQuery != "maintenance" || engine.searchTopK != 5 {
		t.Fatalf("engine saw query %q topK %d", engine.searchQuery, engine.searchTopK)
	}
	if engine.searchFilter["page_type"] != "news" {
		t.Fatalf("filter = %v", engine.searchFilter)
	}
}

func TestAdminSearchRequiresQuery(t *testing.T) {
	e := testServer(nil, nil, nil)

	token, _ := SignAdminToken("ops", []byte("test-secret"), time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/search", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminRejectsForgedToken(t *testing.T) {
	e := testServer(nil, nil, nil)

	token, _ := SignAdminToken("ops", []byte("wrong-secret"), time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/reset", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
