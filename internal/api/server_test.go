package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage/memory"
	"github.com/vietddude/pipesync/internal/sync/classify"
	"github.com/vietddude/pipesync/internal/sync/engine"
)

// ============================================================
// Mocks
// ============================================================

type mockRunner struct {
	mu      sync.Mutex
	result  *engine.Result
	err     error
	block   chan struct{}
	started chan struct{}
	calls   int
}

func (m *mockRunner) Run(_ context.Context, _ string, _ engine.Options) (*engine.Result, error) {
	m.mu.Lock()
	m.calls++
	block, started := m.block, m.started
	m.started = nil
	m.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return m.result, m.err
}

type mockSearcher struct {
	results []domain.RemotePerson
	err     error
}

func (m *mockSearcher) Search(_ context.Context, _, _ string) ([]domain.RemotePerson, error) {
	return m.results, m.err
}

func newTestServer(t *testing.T, runner *mockRunner, searcher *mockSearcher) (*Server, *memory.MemoryStorage) {
	t.Helper()
	store := memory.NewMemoryStorage()
	token := "token-1"
	store.SeedUser(&domain.User{
		ID:                "u1",
		Email:             "u1@example.com",
		PipedriveAPIToken: &token,
		SyncStatus:        domain.UserSyncIdle,
	})
	if runner == nil {
		runner = &mockRunner{result: &engine.Result{SyncID: "s1", SyncType: domain.SyncTypeFull}}
	}
	if searcher == nil {
		searcher = &mockSearcher{}
	}
	srv := NewServer(
		0,
		runner,
		searcher,
		nil,
		memory.NewSyncHistoryRepo(store),
		memory.NewUserRepo(store),
		map[string]HealthCheck{"storage": func(context.Context) error { return nil }},
		nil,
	)
	return srv, store
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// ============================================================
// Tests
// ============================================================

func TestHandleSync_ReturnsResult(t *testing.T) {
	runner := &mockRunner{result: &engine.Result{SyncID: "s1", SyncType: domain.SyncTypeFull, Processed: 3}}
	srv, _ := newTestServer(t, runner, nil)

	rec := do(t, srv, http.MethodPost, "/api/users/u1/sync")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Result engine.Result `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Result.SyncID != "s1" || body.Result.Processed != 3 {
		t.Errorf("unexpected result %+v", body.Result)
	}
}

func TestHandleSync_ConflictWhileRunning(t *testing.T) {
	runner := &mockRunner{
		result:  &engine.Result{SyncID: "s1"},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	srv, _ := newTestServer(t, runner, nil)

	firstDone := make(chan *httptest.ResponseRecorder)
	go func() { firstDone <- do(t, srv, http.MethodPost, "/api/users/u1/sync") }()
	<-runner.started

	rec := do(t, srv, http.MethodPost, "/api/users/u1/sync")
	if rec.Code != http.StatusConflict {
		t.Errorf("second sync status = %d, want 409", rec.Code)
	}

	close(runner.block)
	first := <-firstDone
	if first.Code != http.StatusOK {
		t.Errorf("first sync status = %d, want 200", first.Code)
	}

	// Lock released, a new run is allowed again.
	rec = do(t, srv, http.MethodPost, "/api/users/u1/sync")
	if rec.Code != http.StatusOK {
		t.Errorf("third sync status = %d, want 200", rec.Code)
	}
}

func TestHandleSync_InvalidTypeRejected(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := do(t, srv, http.MethodPost, "/api/users/u1/sync?type=PARTIAL")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSync_AuthErrorMapsTo401(t *testing.T) {
	runner := &mockRunner{err: classify.Errorf(classify.KindAuthentication, "invalid api token")}
	srv, _ := newTestServer(t, runner, nil)

	rec := do(t, srv, http.MethodPost, "/api/users/u1/sync")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401; body %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error_kind"] != "AUTHENTICATION" {
		t.Errorf("error_kind = %q, want AUTHENTICATION", body["error_kind"])
	}
	if body["error"] == "" {
		t.Error("expected user-facing error message")
	}
}

func TestHandleSync_FailedRunStillReturnsResult(t *testing.T) {
	runner := &mockRunner{
		result: &engine.Result{SyncID: "s1", Failed: 2, Processed: 2},
		err:    classify.Errorf(classify.KindDatabase, "all 2 contacts failed"),
	}
	srv, _ := newTestServer(t, runner, nil)

	rec := do(t, srv, http.MethodPost, "/api/users/u1/sync")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error_kind"] != "DATABASE" {
		t.Errorf("error_kind = %v, want DATABASE", body["error_kind"])
	}
	if body["result"] == nil {
		t.Error("expected result alongside error")
	}
}

func TestHandleHistory(t *testing.T) {
	srv, store := newTestServer(t, nil, nil)
	repo := memory.NewSyncHistoryRepo(store)

	now := time.Now()
	for i, status := range []domain.SyncStatus{domain.SyncStatusSuccess, domain.SyncStatusFailed} {
		started := now.Add(time.Duration(i) * time.Minute)
		repo.Create(context.Background(), &domain.SyncHistory{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			SyncType:  domain.SyncTypeFull,
			Status:    status,
			StartedAt: started,
		})
	}

	rec := do(t, srv, http.MethodGet, "/api/users/u1/sync/history?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		History []domain.SyncHistory `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.History) != 2 {
		t.Fatalf("history len = %d, want 2", len(body.History))
	}
	if body.History[0].Status != domain.SyncStatusFailed {
		t.Errorf("expected newest row first, got %+v", body.History[0])
	}
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := do(t, srv, http.MethodGet, "/api/users/u1/sync/history?limit=nope")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := do(t, srv, http.MethodGet, "/api/users/u1/sync/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["sync_status"] != "idle" {
		t.Errorf("sync_status = %v, want idle", body["sync_status"])
	}
}

func TestHandleStatus_UnknownUser(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := do(t, srv, http.MethodGet, "/api/users/nope/sync/status")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	searcher := &mockSearcher{results: []domain.RemotePerson{{ID: 7, Name: "Alice"}}}
	srv, _ := newTestServer(t, nil, searcher)

	rec := do(t, srv, http.MethodGet, "/api/users/u1/contacts/search?q=alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Results []domain.RemotePerson `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Name != "Alice" {
		t.Errorf("unexpected results %+v", body.Results)
	}
}

func TestHandleSearch_ValidationMapsTo400(t *testing.T) {
	searcher := &mockSearcher{err: classify.Errorf(classify.KindValidation, "search query must not be empty")}
	srv, _ := newTestServer(t, nil, searcher)

	rec := do(t, srv, http.MethodGet, "/api/users/u1/contacts/search?q=")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleHealth_Unhealthy(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	srv.checks["redis"] = func(context.Context) error {
		return classify.Errorf(classify.KindNetwork, "connection refused")
	}

	rec := do(t, srv, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", body.Status)
	}
	if body.Checks["storage"] != "ok" {
		t.Errorf("storage check = %q, want ok", body.Checks["storage"])
	}
}
