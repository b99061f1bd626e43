// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepd/sweepd/internal/database"
	"github.com/sweepd/sweepd/internal/engine"
	"github.com/sweepd/sweepd/internal/fileops"
	"github.com/sweepd/sweepd/internal/models"
	"github.com/sweepd/sweepd/internal/scans"
	"github.com/sweepd/sweepd/internal/storage"
)

// scriptedRunner returns canned findings per category so handler tests can
// drive scans to completion without the real engine.
type scriptedRunner struct {
	findings map[models.ScanCategory]*models.Findings
	err      error
}

func (r *scriptedRunner) Run(ctx context.Context, scan *models.Scan, _ func(engine.ProgressLine)) (*models.Findings, error) {
	if r.err != nil {
		return nil, r.err
	}
	if f, ok := r.findings[scan.Category]; ok {
		return f, nil
	}
	return &models.Findings{}, nil
}

type testAPI struct {
	router      chi.Router
	service     *scans.Service
	broadcaster *scans.Broadcaster
}

func newTestAPI(t *testing.T, runner scans.EngineRunner) *testAPI {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	broadcaster := scans.NewBroadcaster()
	service := scans.NewService(models.NewScanStore(db), runner, broadcaster, nil)
	require.NoError(t, service.Start(context.Background()))
	t.Cleanup(service.Stop)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", NewHealthHandler().Health)
		r.Route("/scans", func(r chi.Router) {
			NewScansHandler(service).Routes(r)
			r.Get("/{scanID}/events", NewScanEventsHandler(service, broadcaster).HandleSSE)
		})
	})

	return &testAPI{router: r, service: service, broadcaster: broadcaster}
}

// gatedRunner blocks until released so a scan stays running for the
// duration of a test.
type gatedRunner struct {
	release chan struct{}
}

func (r *gatedRunner) Run(ctx context.Context, _ *models.Scan, _ func(engine.ProgressLine)) (*models.Findings, error) {
	select {
	case <-r.release:
		return &models.Findings{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) submitAndWait(t *testing.T, req *models.ScanRequest) models.Scan {
	t.Helper()

	w := a.do(t, http.MethodPost, "/api/scans", req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Scan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	var final models.Scan
	require.Eventually(t, func() bool {
		resp := a.do(t, http.MethodGet, "/api/scans/"+created.ID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &final); err != nil {
			return false
		}
		return final.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return final
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	w := api.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSubmitScanLifecycle(t *testing.T) {
	findings := &models.Findings{
		Groups: []models.FindingGroup{{
			Files: []models.FileEntry{
				{Path: "/storage/a.bin", Size: 100},
				{Path: "/storage/b.bin", Size: 100},
				{Path: "/storage/c.bin", Size: 50},
			},
		}},
	}
	findings.Normalize()
	api := newTestAPI(t, &scriptedRunner{
		findings: map[models.ScanCategory]*models.Findings{models.CategoryDuplicates: findings},
	})

	final := api.submitAndWait(t, &models.ScanRequest{
		Category:    models.CategoryDuplicates,
		Directories: []string{t.TempDir()},
	})

	assert.Equal(t, models.ScanStatusCompleted, final.Status)
	assert.Equal(t, 1, final.FindingsCount)
	assert.Equal(t, int64(250), final.TotalSize)
	require.NotNil(t, final.Findings)
	assert.Len(t, final.Findings.Groups, 1)
}

func TestSubmitScanRejectsInvalidRequest(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	w := api.do(t, http.MethodPost, "/api/scans", &models.ScanRequest{
		Category:    "bogus",
		Directories: []string{t.TempDir()},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "unknown scan category")
}

func TestSubmitScanRejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	req := httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetScanNotFound(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	w := api.do(t, http.MethodGet, "/api/scans/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListScans(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	w := api.do(t, http.MethodGet, "/api/scans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	api.submitAndWait(t, &models.ScanRequest{
		Category:    models.CategoryEmptyFiles,
		Directories: []string{t.TempDir()},
	})

	w = api.do(t, http.MethodGet, "/api/scans", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list []models.Scan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCancelFinishedScanConflicts(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	final := api.submitAndWait(t, &models.ScanRequest{
		Category:    models.CategoryEmptyFiles,
		Directories: []string{t.TempDir()},
	})

	w := api.do(t, http.MethodDelete, "/api/scans/"+final.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSelectFindings(t *testing.T) {
	now := time.Now().UTC()
	findings := &models.Findings{
		Groups: []models.FindingGroup{{
			Files: []models.FileEntry{
				{Path: "/storage/old.bin", Size: 100, ModifiedAt: now.Add(-time.Hour)},
				{Path: "/storage/new.bin", Size: 100, ModifiedAt: now},
			},
		}},
	}
	findings.Normalize()
	api := newTestAPI(t, &scriptedRunner{
		findings: map[models.ScanCategory]*models.Findings{models.CategoryDuplicates: findings},
	})

	final := api.submitAndWait(t, &models.ScanRequest{
		Category:    models.CategoryDuplicates,
		Directories: []string{t.TempDir()},
	})
	require.Equal(t, models.ScanStatusCompleted, final.Status)

	w := api.do(t, http.MethodPost, fmt.Sprintf("/api/scans/%s/select", final.ID), map[string]string{
		"strategy": "keep-newest",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Strategy string   `json:"strategy"`
		Paths    []string `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "keep-newest", resp.Strategy)
	assert.Equal(t, []string{"/storage/old.bin"}, resp.Paths)

	w = api.do(t, http.MethodPost, fmt.Sprintf("/api/scans/%s/select", final.ID), map[string]string{
		"strategy": "keep-everything",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelectFindingsRequiresGroupedCategory(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	final := api.submitAndWait(t, &models.ScanRequest{
		Category:    models.CategoryEmptyFiles,
		Directories: []string{t.TempDir()},
	})

	w := api.do(t, http.MethodPost, fmt.Sprintf("/api/scans/%s/select", final.ID), map[string]string{
		"strategy": "keep-newest",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanEventsTerminalScanGetsDoneEvent(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	final := api.submitAndWait(t, &models.ScanRequest{
		Category:    models.CategoryEmptyFiles,
		Directories: []string{t.TempDir()},
	})

	w := api.do(t, http.MethodGet, fmt.Sprintf("/api/scans/%s/events", final.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event: done")
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
}

func TestScanEventsHeartbeatOnIdleStream(t *testing.T) {
	release := make(chan struct{})
	api := newTestAPI(t, &gatedRunner{release: release})
	defer close(release)

	w := api.do(t, http.MethodPost, "/api/scans", &models.ScanRequest{
		Category:    models.CategoryDuplicates,
		Directories: []string{t.TempDir()},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Scan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	h := NewScanEventsHandler(api.service, api.broadcaster)
	h.heartbeat = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("scanID", created.ID)
	req := httptest.NewRequest(http.MethodGet, "/api/scans/"+created.ID+"/events", nil).
		WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.HandleSSE(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: heartbeat")
	assert.Contains(t, body, `"timestamp":`)
}

func TestScanEventsUnknownScan(t *testing.T) {
	api := newTestAPI(t, &scriptedRunner{})

	w := api.do(t, http.MethodGet, "/api/scans/unknown-id/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newFilesRouter(t *testing.T) (chi.Router, string, string) {
	t.Helper()

	root := t.TempDir()
	trash := filepath.Join(root, ".trash")
	r := chi.NewRouter()
	r.Route("/api/files", NewFilesHandler(fileops.NewService(root, trash)).Routes)
	return r, root, trash
}

func TestFilesTrashRestoreFlow(t *testing.T) {
	router, root, _ := newFilesRouter(t)

	path := filepath.Join(root, "dupe.txt")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	do := func(method, target string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(method, target, &buf)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/api/files/trash", map[string][]string{"paths": {path}})
	require.Equal(t, http.StatusOK, w.Code)

	var result fileops.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Success, 1)
	assert.Empty(t, result.Failed)
	assert.NoFileExists(t, path)

	w = do(http.MethodGet, "/api/files/trash", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var items []fileops.TrashItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, path, items[0].OriginalPath)

	w = do(http.MethodPost, "/api/files/restore", map[string]string{"trashId": items[0].TrashID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.FileExists(t, path)
}

func TestFilesDeleteRequiresPaths(t *testing.T) {
	router, _, _ := newFilesRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/files/delete", bytes.NewBufferString(`{"paths":[]}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFilesDeleteOutsideRootReported(t *testing.T) {
	router, _, _ := newFilesRouter(t)

	body := bytes.NewBufferString(`{"paths":["/etc/passwd"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/files/delete", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result fileops.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Empty(t, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "/etc/passwd", result.Failed[0].Path)
}

func TestStorageEndpoints(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "media"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "media", "a.mkv"), bytes.Repeat([]byte{0}, 2048), 0o644))

	r := chi.NewRouter()
	r.Route("/api/storage", NewStorageHandler(storage.NewService(root)).Routes)

	req := httptest.NewRequest(http.MethodGet, "/api/storage/directories", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var dirs []storage.Directory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dirs))
	require.Len(t, dirs, 1)
	assert.Equal(t, "Media", dirs[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/api/storage/stats", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats []storage.Stat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2048), stats[0].Used)
}
