package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/models"
	"shepherd/pkg/chart"
	"shepherd/pkg/ocr"
	"shepherd/process/analyser"
	"shepherd/process/store"
)

// memoryRuns keeps runs in memory, mirroring store.Store.
type memoryRuns struct {
	mu     sync.Mutex
	runs   map[string]*models.AnalysisRun
	tables map[string]analyser.ResultTable
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: map[string]*models.AnalysisRun{}, tables: map[string]analyser.ResultTable{}}
}

func (m *memoryRuns) StartRun(_ context.Context, sess *analyser.Session, path string, uid *uint, started time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[sess.ID] = &models.AnalysisRun{ID: sess.ID, Mode: sess.Mode.Key(), DocumentPath: path, UserID: uid, Status: models.RunRunning, StartedAt: started}
	return nil
}

func (m *memoryRuns) FailRun(_ context.Context, id string, cause error, finished time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return store.ErrRunNotFound
	}
	r.Status, r.Error, r.FinishedAt = models.RunFailed, cause.Error(), &finished
	return nil
}

func (m *memoryRuns) SaveRun(_ context.Context, table analyser.ResultTable, path string, uid *uint) (*models.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := store.RunFromTable(table, path, uid)
	run.Results = nil
	m.runs[run.ID] = run
	m.tables[run.ID] = table
	return run, nil
}

func (m *memoryRuns) LoadRun(_ context.Context, id string) (*models.AnalysisRun, analyser.ResultTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, analyser.ResultTable{}, store.ErrRunNotFound
	}
	cp := *r
	return &cp, m.tables[id], nil
}

func (m *memoryRuns) ListRuns(_ context.Context, uid *uint, limit int) ([]models.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnalysisRun
	for _, r := range m.runs {
		if uid == nil || (r.UserID != nil && *r.UserID == *uid) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func setupRunServer(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("TMPDIR", t.TempDir())
	base := t.TempDir()
	cfg = serverConfig{DocumentBase: base, OCRTimeout: time.Second, Workers: 2}
	jwtSecret = []byte("test-secret")
	chartTemplate = chart.DefaultTemplate()
	recognizer = ocr.RecognizerFunc(func(context.Context, []byte) (string, error) { return "566", nil })
	analysisMetrics = analyser.NewMetricsForTesting()
	runs = newMemoryRuns()

	r := gin.New()
	setupRoutes(r)
	return r, base
}

func token(t *testing.T, uid uint, role string) string {
	t.Helper()
	tok, err := signAccessToken(uid, fmt.Sprintf("user%d", uid), role, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestResolveDocument(t *testing.T) {
	p, err := resolveDocument("/srv/docs", "site/a.xml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/docs", "site", "a.xml"), p)

	for _, bad := range []string{"../etc/passwd", "/etc/passwd", "a/../../b.xml"} {
		_, err := resolveDocument("/srv/docs", bad)
		assert.ErrorIs(t, err, errOutsideBase, bad)
	}
	_, err = resolveDocument("/srv/docs", " ")
	assert.Error(t, err)
}

func TestRunEndpoints(t *testing.T) {
	r, base := setupRunServer(t)
	xml := `<STUDY><OBJECT HEADING="Gate"><IMPULSE/></OBJECT><OBJECT HEADING="Hall"/></STUDY>`
	require.NoError(t, os.WriteFile(filepath.Join(base, "site.xml"), []byte(xml), 0o644))
	owner := token(t, 5, "user")

	body, _ := json.Marshal(map[string]string{"document": "site.xml", "mode": "impulse"})
	resp := performRequest(r, http.MethodPost, "/runs", bytes.NewBuffer(body), owner, "application/json")
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	pendingRuns.Wait()

	resp = performRequest(r, http.MethodGet, "/runs/"+id, nil, owner, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got struct {
		Columns []string     `json:"columns"`
		Records []recordView `json:"records"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Len(t, got.Columns, 8)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "Gate", got.Records[0].Name)
	assert.Equal(t, "no_chart", got.Records[0].Calibration)

	resp = performRequest(r, http.MethodGet, "/runs/"+id+"/export?calibration=1", nil, owner, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Axis Max", rows[0][len(rows[0])-1])

	// other users cannot see it, admins can
	resp = performRequest(r, http.MethodGet, "/runs/"+id, nil, token(t, 6, "user"), "")
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = performRequest(r, http.MethodGet, "/runs/"+id, nil, token(t, 1, "administrator"), "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = performRequest(r, http.MethodGet, "/runs", nil, token(t, 6, "user"), "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, "null", resp.Body.String())

	resp = performRequest(r, http.MethodGet, "/runs/nope", nil, owner, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateRunRejections(t *testing.T) {
	r, base := setupRunServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(base, "empty.xml"), []byte(`<STUDY/>`), 0o644))
	tok := token(t, 5, "user")

	cases := []struct {
		doc, mode string
		want      int
	}{
		{"empty.xml", "thermal", http.StatusUnprocessableEntity},
		{"missing.xml", "thermal", http.StatusNotFound},
		{"../x.xml", "thermal", http.StatusBadRequest},
		{"empty.xml", "sonar", http.StatusBadRequest},
	}
	for _, tc := range cases {
		body, _ := json.Marshal(map[string]string{"document": tc.doc, "mode": tc.mode})
		resp := performRequest(r, http.MethodPost, "/runs", bytes.NewBuffer(body), tok, "application/json")
		assert.Equal(t, tc.want, resp.Code, "%s %s: %s", tc.doc, tc.mode, resp.Body.String())
	}

	resp := performRequest(r, http.MethodPost, "/runs", bytes.NewBufferString(`{}`), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := setupRunServer(t)
	resp := performRequest(r, http.MethodGet, "/healthz", nil, "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = performRequest(r, http.MethodGet, "/metrics", nil, "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestShutdownWaitsForPendingRuns(t *testing.T) {
	r, _ := setupRunServer(t)

	pendingRuns.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := shutdown(ctx, &http.Server{Handler: r})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		pendingRuns.Done()
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	assert.NoError(t, shutdown(ctx2, &http.Server{Handler: r}))
}
