package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchbook/benchbook/internal/auth"
	"github.com/benchbook/benchbook/internal/ratelimit"
	"github.com/benchbook/benchbook/internal/server"
	"github.com/benchbook/benchbook/internal/storage"
)

const runBody = `<h1>Lysis</h1>
<ul data-type="taskList">
<li data-type="taskItem" data-checked="false"><p>Resuspend the pellet.</p></li>
<li data-type="taskItem" data-checked="false"><p>Add lysis buffer.</p></li>
</ul>`

type testServer struct {
	srv    *httptest.Server
	store  *storage.Memory
	jwtMgr *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewMemory()
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	s := server.New(server.ServerConfig{
		Store:               store,
		JWTMgr:              jwtMgr,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:             "test",
		MaxRequestBodyBytes: 4 << 20,
	})

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testServer{srv: ts, store: store, jwtMgr: jwtMgr}
}

// mintToken fetches a bearer token through the dev token endpoint so the
// tests exercise the same path a local client would.
func (ts *testServer) mintToken(t *testing.T, actorID, role string) string {
	t.Helper()

	body := ts.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"actor_id": actorID,
		"name":     actorID,
		"role":     role,
	}, http.StatusOK)

	token, ok := body["data"].(map[string]any)["token"].(string)
	require.True(t, ok, "token endpoint returned no token: %v", body)
	return token
}

// do performs a request and decodes the envelope, asserting the status code.
func (ts *testServer) do(t *testing.T, method, path, token string, payload any, wantStatus int) map[string]any {
	t.Helper()

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reqBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode, "%s %s", method, path)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func (ts *testServer) createEntry(t *testing.T, token, title string) string {
	t.Helper()

	body := ts.do(t, http.MethodPost, "/v1/entries", token, map[string]string{
		"title":     title,
		"technique": "Cloning",
		"body":      runBody,
	}, http.StatusCreated)
	return body["data"].(map[string]any)["id"].(string)
}

func (ts *testServer) createRun(t *testing.T, token, entryID string) map[string]any {
	t.Helper()

	body := ts.do(t, http.MethodPost, "/v1/protocol-runs", token, map[string]string{
		"source_entry_id": entryID,
	}, http.StatusCreated)
	return body["data"].(map[string]any)
}

func TestRequestWithoutTokenIsRejected(t *testing.T) {
	ts := newTestServer(t)

	body := ts.do(t, http.MethodGet, "/v1/entries", "", nil, http.StatusUnauthorized)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "UNAUTHORIZED", errObj["code"])
	assert.NotEmpty(t, body["meta"].(map[string]any)["request_id"])
}

func TestHealthNeedsNoToken(t *testing.T) {
	ts := newTestServer(t)

	body := ts.do(t, http.MethodGet, "/healthz", "", nil, http.StatusOK)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "test", data["version"])
}

func TestGarbageTokenIsRejected(t *testing.T) {
	ts := newTestServer(t)

	body := ts.do(t, http.MethodGet, "/v1/entries", "not-a-jwt", nil, http.StatusUnauthorized)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestEntryCRUD(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, "jake-user", "MEMBER")

	id := ts.createEntry(t, token, "Plasmid Miniprep")

	body := ts.do(t, http.MethodGet, "/v1/entries/"+id, token, nil, http.StatusOK)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Plasmid Miniprep", data["title"])
	assert.Equal(t, "jake-user", data["author_id"])

	body = ts.do(t, http.MethodPut, "/v1/entries/"+id, token, map[string]string{
		"description": "Alkaline lysis miniprep",
	}, http.StatusOK)
	data = body["data"].(map[string]any)
	assert.Equal(t, "Alkaline lysis miniprep", data["description"])
	assert.Equal(t, "Plasmid Miniprep", data["title"], "unset fields are untouched")

	body = ts.do(t, http.MethodGet, "/v1/entries", token, nil, http.StatusOK)
	list := body["data"].(map[string]any)
	assert.Equal(t, float64(1), list["total"])
	assert.Len(t, list["entries"], 1)
}

func TestEntryUpdateRequiresAuthorOrAdmin(t *testing.T) {
	ts := newTestServer(t)
	author := ts.mintToken(t, "jake-user", "MEMBER")
	other := ts.mintToken(t, "finn-user", "MEMBER")
	admin := ts.mintToken(t, "root-user", "ADMIN")

	id := ts.createEntry(t, author, "Gibson Assembly")

	body := ts.do(t, http.MethodPut, "/v1/entries/"+id, other, map[string]string{
		"title": "Hijacked",
	}, http.StatusForbidden)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])

	ts.do(t, http.MethodPut, "/v1/entries/"+id, admin, map[string]string{
		"description": "curated",
	}, http.StatusOK)
}

func TestEntryNotFound(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, "jake-user", "MEMBER")

	body := ts.do(t, http.MethodGet, "/v1/entries/6e9f7a3e-0000-4000-8000-000000000000", token, nil, http.StatusNotFound)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestCreateRunClonesEntry(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, "jake-user", "MEMBER")
	entryID := ts.createEntry(t, token, "Q5 Mutagenesis")

	run := ts.createRun(t, token, entryID)
	assert.Equal(t, "Q5 Mutagenesis - Run 1", run["title"])
	assert.Equal(t, "IN_PROGRESS", run["status"])
	assert.Equal(t, true, run["locked"])
	assert.Equal(t, runBody, run["run_body"])
	assert.Equal(t, "jake-user", run["runner_id"])

	second := ts.createRun(t, token, entryID)
	assert.Equal(t, "Q5 Mutagenesis - Run 2", second["title"])
}

func TestCreateRunUnknownEntry(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, "jake-user", "MEMBER")

	body := ts.do(t, http.MethodPost, "/v1/protocol-runs", token, map[string]string{
		"source_entry_id": "6e9f7a3e-0000-4000-8000-000000000000",
	}, http.StatusNotFound)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestRunListScopedToRunner(t *testing.T) {
	ts := newTestServer(t)
	jake := ts.mintToken(t, "jake-user", "MEMBER")
	finn := ts.mintToken(t, "finn-user", "MEMBER")
	admin := ts.mintToken(t, "root-user", "ADMIN")

	entryID := ts.createEntry(t, jake, "Heat Shock Transformation")
	ts.createRun(t, jake, entryID)
	ts.createRun(t, jake, entryID)
	ts.createRun(t, finn, entryID)

	body := ts.do(t, http.MethodGet, "/v1/protocol-runs", jake, nil, http.StatusOK)
	assert.Equal(t, float64(2), body["data"].(map[string]any)["total"])

	body = ts.do(t, http.MethodGet, "/v1/protocol-runs", finn, nil, http.StatusOK)
	assert.Equal(t, float64(1), body["data"].(map[string]any)["total"])

	body = ts.do(t, http.MethodGet, "/v1/protocol-runs", admin, nil, http.StatusOK)
	assert.Equal(t, float64(3), body["data"].(map[string]any)["total"], "admins see every run")
}

func TestForeignMemberCannotTouchRun(t *testing.T) {
	ts := newTestServer(t)
	jake := ts.mintToken(t, "jake-user", "MEMBER")
	finn := ts.mintToken(t, "finn-user", "MEMBER")

	entryID := ts.createEntry(t, jake, "Colony PCR")
	run := ts.createRun(t, jake, entryID)
	runID := run["id"].(string)

	body := ts.do(t, http.MethodGet, "/v1/protocol-runs/"+runID, finn, nil, http.StatusForbidden)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])

	ts.do(t, http.MethodPut, "/v1/protocol-runs/"+runID, finn, map[string]string{
		"notes": "not mine",
	}, http.StatusForbidden)
}

func TestRunUpdateAndCompletion(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, "jake-user", "MEMBER")
	entryID := ts.createEntry(t, token, "Ligation")
	run := ts.createRun(t, token, entryID)
	runID := run["id"].(string)

	body := ts.do(t, http.MethodPut, "/v1/protocol-runs/"+runID, token, map[string]string{
		"interaction_state": `{"stepCompletion":{"step-1":true}}`,
		"notes":             "ligated overnight at 16C",
	}, http.StatusOK)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ligated overnight at 16C", data["notes"])
	assert.Equal(t, "IN_PROGRESS", data["status"])

	body = ts.do(t, http.MethodPut, "/v1/protocol-runs/"+runID, token, map[string]string{
		"status": "COMPLETED",
	}, http.StatusOK)
	assert.Equal(t, "COMPLETED", body["data"].(map[string]any)["status"])

	// Terminal: any further write conflicts.
	body = ts.do(t, http.MethodPut, "/v1/protocol-runs/"+runID, token, map[string]string{
		"notes": "one more thing",
	}, http.StatusConflict)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "CONFLICT", errObj["code"])
	assert.Equal(t, "run already ended and is locked", errObj["message"])
}

func TestRunUpdateRejectsUnknownStatus(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, "jake-user", "MEMBER")
	entryID := ts.createEntry(t, token, "Ligation")
	run := ts.createRun(t, token, entryID)

	body := ts.do(t, http.MethodPut, fmt.Sprintf("/v1/protocol-runs/%s", run["id"]), token, map[string]string{
		"status": "PAUSED",
	}, http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT", body["error"].(map[string]any)["code"])
}

func TestRateLimit_PerActorBucket(t *testing.T) {
	store := storage.NewMemory()
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	// Refill is effectively zero within the test, so only the burst counts.
	limiter := ratelimit.NewMemoryLimiter(0.001, 2)
	defer limiter.Close()

	s := server.New(server.ServerConfig{
		Store:               store,
		JWTMgr:              jwtMgr,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:             "test",
		MaxRequestBodyBytes: 4 << 20,
		RateLimiter:         limiter,
	})

	ts := &testServer{srv: httptest.NewServer(s.Handler()), store: store, jwtMgr: jwtMgr}
	defer ts.srv.Close()

	// The token mint is keyed by IP, so it spends from a separate bucket.
	token := ts.mintToken(t, "jake-user", "MEMBER")

	ts.do(t, http.MethodGet, "/v1/entries", token, nil, http.StatusOK)
	ts.do(t, http.MethodGet, "/v1/entries", token, nil, http.StatusOK)

	body := ts.do(t, http.MethodGet, "/v1/entries", token, nil, http.StatusTooManyRequests)
	assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]any)["code"])
}

func TestUnknownJSONFieldIsRejected(t *testing.T) {
	ts := newTestServer(t)
	token := ts.mintToken(t, "jake-user", "MEMBER")

	body := ts.do(t, http.MethodPost, "/v1/entries", token, map[string]string{
		"title":    "Typo Protocol",
		"bodyhtml": "<p>x</p>",
	}, http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT", body["error"].(map[string]any)["code"])
}
