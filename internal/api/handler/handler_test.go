package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errdeck/errdeck/internal/api/handler"
	"github.com/errdeck/errdeck/internal/ingest"
	"github.com/errdeck/errdeck/internal/problem"
	"github.com/errdeck/errdeck/internal/store"
	"github.com/errdeck/errdeck/pkg/models"
)

// --- stubs ---

type stubIngestor struct {
	gotReport *models.Report
	result    *ingest.Result
	err       error
}

func (s *stubIngestor) Process(_ context.Context, report *models.Report) (*ingest.Result, error) {
	s.gotReport = report
	if s.err != nil {
		return &ingest.Result{State: ingest.StateRejected}, s.err
	}
	return s.result, nil
}

type stubMerger struct {
	gotIDs []uuid.UUID
	result *models.Problem
	err    error
}

func (s *stubMerger) Merge(_ context.Context, ids []uuid.UUID) (*models.Problem, error) {
	s.gotIDs = ids
	return s.result, s.err
}

type stubDestroyer struct {
	gotIDs  []uuid.UUID
	deleted int64
	err     error
}

func (s *stubDestroyer) Destroy(_ context.Context, ids []uuid.UUID) (int64, error) {
	s.gotIDs = ids
	return s.deleted, s.err
}

type stubProblemStore struct {
	prob *models.Problem
	err  error
}

func (s *stubProblemStore) ResolveProblem(_ context.Context, _ uuid.UUID) (*models.Problem, error) {
	return s.prob, s.err
}

func (s *stubProblemStore) UnresolveProblem(_ context.Context, _ uuid.UUID) (*models.Problem, error) {
	return s.prob, s.err
}

func okResult() *ingest.Result {
	return &ingest.Result{
		State:    ingest.StateDone,
		Notice:   &models.Notice{ID: uuid.New()},
		Problem:  &models.Problem{ID: uuid.New(), NoticesCount: 1},
		Notified: true,
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func dataField(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["data"].(map[string]any)
}

// ========================================
// Ingest Handler Tests
// ========================================

func TestIngest_Accepted(t *testing.T) {
	ing := &stubIngestor{result: okResult()}
	h := handler.NewIngestHandler(ing)

	body := `{"key":"abcd1234","error_class":"RuntimeError","message":"boom","notifier":{"name":"notifier-go"}}`
	req := httptest.NewRequest("POST", "/api/v1/notices", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := dataField(t, w)
	assert.Equal(t, ing.result.Notice.ID.String(), data["notice_id"])
	assert.Equal(t, ing.result.Problem.ID.String(), data["problem_id"])
	assert.Equal(t, true, data["notified"])
	assert.Equal(t, "abcd1234", ing.gotReport.APIKey)
}

func TestIngest_KeyFromHeader(t *testing.T) {
	ing := &stubIngestor{result: okResult()}
	h := handler.NewIngestHandler(ing)

	body := `{"error_class":"RuntimeError","message":"boom","notifier":{"name":"notifier-go"}}`
	req := httptest.NewRequest("POST", "/api/v1/notices", strings.NewReader(body))
	req.Header.Set("X-Api-Key", "headerkey1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "headerkey1", ing.gotReport.APIKey)
}

func TestIngest_KeyFromBearerToken(t *testing.T) {
	ing := &stubIngestor{result: okResult()}
	h := handler.NewIngestHandler(ing)

	body := `{"error_class":"RuntimeError","message":"boom","notifier":{"name":"notifier-go"}}`
	req := httptest.NewRequest("POST", "/api/v1/notices", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer bearerkey1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "bearerkey1", ing.gotReport.APIKey)
}

func TestIngest_BodyKeyWinsOverHeader(t *testing.T) {
	ing := &stubIngestor{result: okResult()}
	h := handler.NewIngestHandler(ing)

	body := `{"key":"bodykey1","error_class":"RuntimeError","message":"boom","notifier":{"name":"notifier-go"}}`
	req := httptest.NewRequest("POST", "/api/v1/notices", strings.NewReader(body))
	req.Header.Set("X-Api-Key", "headerkey1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "bodykey1", ing.gotReport.APIKey)
}

func TestIngest_InvalidJSON(t *testing.T) {
	h := handler.NewIngestHandler(&stubIngestor{result: okResult()})

	req := httptest.NewRequest("POST", "/api/v1/notices", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, w))
}

func TestIngest_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: missing message", ingest.ErrValidation), http.StatusBadRequest, "INVALID_REQUEST"},
		{fmt.Errorf("%w: %q", ingest.ErrUnknownCredential, "zzz"), http.StatusUnprocessableEntity, "UNKNOWN_API_KEY"},
		{fmt.Errorf("%w: reported 0.9", ingest.ErrVersionGated), http.StatusUnprocessableEntity, "VERSION_GATED"},
		{fmt.Errorf("%w: persist notice", ingest.ErrStoreUnavailable), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := handler.NewIngestHandler(&stubIngestor{err: tc.err})

			body := `{"key":"abcd1234","error_class":"RuntimeError","message":"boom","notifier":{"name":"notifier-go"}}`
			req := httptest.NewRequest("POST", "/api/v1/notices", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, errCode(t, w))
		})
	}
}

// ========================================
// Merge Handler Tests
// ========================================

func TestMerge_Success(t *testing.T) {
	survivor := &models.Problem{ID: uuid.New(), NoticesCount: 7}
	merger := &stubMerger{result: survivor}
	h := handler.NewMergeHandler(merger)

	a, b := uuid.New(), uuid.New()
	body := fmt.Sprintf(`{"problem_ids":["%s","%s"]}`, a, b)
	req := httptest.NewRequest("POST", "/api/v1/problems/merge", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{a, b}, merger.gotIDs)
	data := dataField(t, w)
	assert.Equal(t, survivor.ID.String(), data["id"])
}

func TestMerge_RequiresTwoIDs(t *testing.T) {
	h := handler.NewMergeHandler(&stubMerger{})

	body := fmt.Sprintf(`{"problem_ids":["%s"]}`, uuid.New())
	req := httptest.NewRequest("POST", "/api/v1/problems/merge", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMerge_RejectsBadUUID(t *testing.T) {
	h := handler.NewMergeHandler(&stubMerger{})

	body := `{"problem_ids":["not-a-uuid","also-bad"]}`
	req := httptest.NewRequest("POST", "/api/v1/problems/merge", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMerge_NothingToMerge(t *testing.T) {
	h := handler.NewMergeHandler(&stubMerger{err: problem.ErrNothingToMerge})

	body := fmt.Sprintf(`{"problem_ids":["%s","%s"]}`, uuid.New(), uuid.New())
	req := httptest.NewRequest("POST", "/api/v1/problems/merge", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, w))
}

// ========================================
// Resolve / Unresolve Handler Tests
// ========================================

func routed(method, pattern string, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestResolve_Success(t *testing.T) {
	prob := &models.Problem{ID: uuid.New(), Resolved: true}
	h := handler.NewResolveHandler(&stubProblemStore{prob: prob})

	w := routed("POST", "/api/v1/problems/{problemID}/resolve", h,
		"/api/v1/problems/"+prob.ID.String()+"/resolve")

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataField(t, w)
	assert.Equal(t, true, data["resolved"])
}

func TestResolve_NotFound(t *testing.T) {
	h := handler.NewResolveHandler(&stubProblemStore{err: store.ErrNotFound})

	w := routed("POST", "/api/v1/problems/{problemID}/resolve", h,
		"/api/v1/problems/"+uuid.NewString()+"/resolve")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolve_BadUUID(t *testing.T) {
	h := handler.NewResolveHandler(&stubProblemStore{})

	w := routed("POST", "/api/v1/problems/{problemID}/resolve", h,
		"/api/v1/problems/nope/resolve")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnresolve_Success(t *testing.T) {
	prob := &models.Problem{ID: uuid.New(), Resolved: false}
	h := handler.NewUnresolveHandler(&stubProblemStore{prob: prob})

	w := routed("POST", "/api/v1/problems/{problemID}/unresolve", h,
		"/api/v1/problems/"+prob.ID.String()+"/unresolve")

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataField(t, w)
	assert.Equal(t, false, data["resolved"])
}

// ========================================
// Destroy Handler Tests
// ========================================

func TestDestroy_Success(t *testing.T) {
	destroyer := &stubDestroyer{deleted: 1}
	h := handler.NewDestroyHandler(destroyer)

	id := uuid.New()
	w := routed("DELETE", "/api/v1/problems/{problemID}", h,
		"/api/v1/problems/"+id.String())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{id}, destroyer.gotIDs)
}

func TestDestroy_NotFound(t *testing.T) {
	h := handler.NewDestroyHandler(&stubDestroyer{deleted: 0})

	w := routed("DELETE", "/api/v1/problems/{problemID}", h,
		"/api/v1/problems/"+uuid.NewString())

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, w))
}
