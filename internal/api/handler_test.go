package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebooks-core/internal/backup"
	"sitebooks-core/internal/events"
	"sitebooks-core/internal/ledger"
	"sitebooks-core/internal/restore"
	"sitebooks-core/pkg/db"
)

const testAppKey = "test-app-key"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	mgr := db.NewManager(filepath.Join(dir, "books.db"), 16)
	t.Cleanup(mgr.Close)

	backups, err := backup.NewStore(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	bus := events.NewBus()
	coordinator := restore.NewCoordinator(mgr, backups, bus)
	ledgerSvc := ledger.NewService(mgr, time.Minute)
	coordinator.Register(ledgerSvc)

	return NewServer(bus, mgr, backups, coordinator, ledgerSvc, testAppKey, "test-secret", 90)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func sessionToken(t *testing.T, s *Server) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/session", "", gin.H{"app_key": testAppKey})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSession_RejectsWrongAppKey(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/session", "", gin.H{"app_key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_APP_KEY")
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/db/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_TOKEN")

	w = doJSON(t, s, http.MethodGet, "/api/db/status", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestDBStatus(t *testing.T) {
	s := newTestServer(t)
	token := sessionToken(t, s)

	w := doJSON(t, s, http.MethodGet, "/api/db/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
		Path   string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Path)
}

func TestBackupLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := sessionToken(t, s)

	// Touch the store so there is something to back up.
	q := db.NewQueries(s.Manager)
	require.NoError(t, q.CreateProject(context.Background(), db.Project{ID: "p1", Name: "Depot"}))

	w := doJSON(t, s, http.MethodPost, "/api/backups", token, gin.H{"name": "first.db"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Backup  backup.Entry `json:"backup"`
		Deduped bool         `json:"deduped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.False(t, created.Deduped)
	assert.NotEmpty(t, created.Backup.Hash)

	// Identical content: second request dedups.
	w = doJSON(t, s, http.MethodPost, "/api/backups", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Deduped)

	w = doJSON(t, s, http.MethodGet, "/api/backups", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Backups []backup.Entry `json:"backups"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Backups, 1)

	w = doJSON(t, s, http.MethodDelete, "/api/backups", token, gin.H{"path": listed.Backups[0].Path})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":true`)
}

func TestRestoreEndpoint_RejectsBadCandidate(t *testing.T) {
	s := newTestServer(t)
	token := sessionToken(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/restore", token, gin.H{"path": filepath.Join(t.TempDir(), "missing.db")})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "RESTORE_PRECONDITION_FAILED")
}

func TestProjectSummaryEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := sessionToken(t, s)

	q := db.NewQueries(s.Manager)
	require.NoError(t, q.CreateProject(context.Background(), db.Project{ID: "p1", Name: "Depot"}))

	w := doJSON(t, s, http.MethodGet, "/api/projects/p1/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary ledger.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "p1", summary.ProjectID)
}
