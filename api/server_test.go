package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medreport/analyzer"
	"medreport/core"
	"medreport/db"
	"medreport/docprocessor"
	"medreport/logging"
	"medreport/metrics"
	"medreport/pipeline"
	"medreport/shutdown"
	"medreport/summarizer"
)

type testEnv struct {
	server     *Server
	repo       *db.Repository
	uploadsDir string
	metrics    *metrics.Store
}

type envOption func(*Options)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	repo := db.NewRepository(database, nil)
	collector := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())

	p, err := pipeline.New(pipeline.Options{
		Summarizer: summarizer.NewCascade(logging.NewNop()),
		Analyzer:   analyzer.New(nil, logging.NewNop()),
		Store:      repo,
		Runs:       repo,
		Metrics:    collector,
	})
	require.NoError(t, err)

	uploads := t.TempDir()
	o := Options{
		Repository:   repo,
		Extractor:    docprocessor.NewExtractor(logging.NewNop(), 1<<20),
		Runner:       p,
		Metrics:      collector,
		Capabilities: core.Capabilities{},
		UploadsDir:   uploads,
		MaxFileSize:  1 << 20,
	}
	for _, opt := range opts {
		opt(&o)
	}

	server, err := NewServer(o)
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)

	return &testEnv{server: server, repo: repo, uploadsDir: uploads, metrics: collector}
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, owner, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/reports", owner, buf.Bytes(), mw.FormDataContentType())
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Capabilities = core.Capabilities{HostedModel: "gpt-4o-mini"}
	})

	w := env.do(t, http.MethodGet, "/healthz", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status       string          `json:"status"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	decode(t, w, &body)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Capabilities[string(core.FeatureHostedLLM)])
	assert.False(t, body.Capabilities[string(core.FeatureLocalSummarizer)])
}

func TestAPI_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/reports", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/reports", "   ", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadAndSummarize_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	text := "Patient reports persistent cough and fever for 5 days."

	w := env.upload(t, "alice", "../../notes 1.txt", []byte("  "+text+"\x00\n"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var report db.Report
	decode(t, w, &report)
	assert.Equal(t, text, report.ExtractedText)
	assert.Equal(t, "notes_1.txt", report.FileName)
	assert.True(t, strings.HasPrefix(report.FilePath, "reports/"))
	assert.FileExists(t, filepath.Join(env.uploadsDir, filepath.FromSlash(report.FilePath)))

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/summarize", report.ID), "alice", nil, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var summary struct {
		ID                      int64                    `json:"id"`
		Report                  int64                    `json:"report"`
		SummaryText             string                   `json:"summary_text"`
		AnalysisText            string                   `json:"analysis_text"`
		PredictedDiseases       string                   `json:"predicted_diseases"`
		SummaryTier             string                   `json:"summary_tier"`
		AnalysisParsed          map[string]interface{}   `json:"analysis_parsed"`
		PredictedDiseasesParsed []map[string]interface{} `json:"predicted_diseases_parsed"`
	}
	decode(t, w, &summary)
	assert.Equal(t, report.ID, summary.Report)
	assert.Equal(t, text, summary.SummaryText)
	assert.Equal(t, "truncation", summary.SummaryTier)
	assert.Equal(t, analyzer.NoCredentialMessage, summary.AnalysisParsed["raw"])
	assert.NotNil(t, summary.PredictedDiseasesParsed)
	assert.Empty(t, summary.PredictedDiseasesParsed)
	assert.JSONEq(t, `[]`, summary.PredictedDiseases)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/summaries/%d", summary.ID), "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched summaryResponse
	decode(t, w, &fetched)
	assert.Equal(t, text, fetched.SummaryText)
	assert.Equal(t, map[string]interface{}{"raw": analyzer.NoCredentialMessage}, fetched.AnalysisParsed)

	w = env.do(t, http.MethodGet, "/api/summaries", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []summaryResponse `json:"data"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Data, 1)

	w = env.do(t, http.MethodGet, "/api/runs", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var runs struct {
		Data []db.PipelineRun `json:"data"`
	}
	decode(t, w, &runs)
	require.Len(t, runs.Data, 1)
	assert.Equal(t, summary.ID, runs.Data[0].SummaryID)

	w = env.do(t, http.MethodGet, "/api/metrics", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap metrics.Snapshot
	decode(t, w, &snap)
	assert.Equal(t, int64(1), snap.SummariesByTier["truncation"])
}

func TestCreateSummary_ByBody(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.repo.CreateReport(context.Background(), db.Report{OwnerID: "alice", FileName: "a.txt", ExtractedText: "Wheezing."})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/summaries", "alice", []byte(fmt.Sprintf(`{"report": %d}`, report.ID)), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/summaries", "alice", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/summaries", "alice", []byte(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummarize_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	empty, err := env.repo.CreateReport(ctx, db.Report{OwnerID: "alice", FileName: "blank.pdf"})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/summarize", empty.ID), "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/summarize", empty.ID), "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "foreign reports look missing")

	w = env.do(t, http.MethodPost, "/api/reports/9999/summarize", "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/reports/abc/summarize", "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	summaries, err := env.repo.ListSummaries(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, summaries, "failed runs persist nothing")
}

type failingRunner struct{ err error }

func (f failingRunner) Run(context.Context, db.Report) (pipeline.Result, error) {
	return pipeline.Result{}, f.err
}

func TestSummarize_InternalErrorIsGeneric(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Runner = failingRunner{err: fmt.Errorf("%w: sqlite: database is locked at /secret/path", pipeline.ErrInternal)}
	})
	report, _ := env.repo.CreateReport(context.Background(), db.Report{OwnerID: "alice", FileName: "a.txt", ExtractedText: "x"})

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/summarize", report.ID), "alice", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestSummarize_ShuttingDown(t *testing.T) {
	manager := shutdown.NewManager(nil)
	require.NoError(t, manager.Shutdown())

	env := newTestEnv(t, func(o *Options) { o.Tracker = manager })
	report, _ := env.repo.CreateReport(context.Background(), db.Report{OwnerID: "alice", FileName: "a.txt", ExtractedText: "x"})

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/summarize", report.ID), "alice", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReports_OwnerScopedListing(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusCreated, env.upload(t, "alice", "a.txt", []byte("one")).Code)
	require.Equal(t, http.StatusCreated, env.upload(t, "alice", "b.txt", []byte("two")).Code)
	require.Equal(t, http.StatusCreated, env.upload(t, "bob", "c.txt", []byte("three")).Code)

	w := env.do(t, http.MethodGet, "/api/reports", "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []db.Report `json:"data"`
	}
	decode(t, w, &list)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "b.txt", list.Data[0].FileName, "newest first")

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/reports/%d", list.Data[0].ID), "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload_Validation(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MaxFileSize = 16 })

	w := env.do(t, http.MethodPost, "/api/reports", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.upload(t, "alice", "big.txt", bytes.Repeat([]byte("a"), 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "16 B upload limit")
}

func TestUpload_CorruptPDFStoresEmptyText(t *testing.T) {
	env := newTestEnv(t)

	w := env.upload(t, "alice", "scan.pdf", []byte("%PDF-1.4 garbage"))
	require.Equal(t, http.StatusCreated, w.Code)

	var report db.Report
	decode(t, w, &report)
	assert.Empty(t, report.ExtractedText)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/summarize", report.ID), "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReextract(t *testing.T) {
	env := newTestEnv(t)

	w := env.upload(t, "alice", "note.txt", []byte("original"))
	require.Equal(t, http.StatusCreated, w.Code)
	var report db.Report
	decode(t, w, &report)

	// Replace the stored blob and extract again
	full := filepath.Join(env.uploadsDir, filepath.FromSlash(report.FilePath))
	require.NoError(t, os.WriteFile(full, []byte("revised   text"), 0o644))

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/extract", report.ID), "alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.repo.GetReport(context.Background(), report.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "revised text", stored.ExtractedText)

	require.NoError(t, os.Remove(full))
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/reports/%d/extract", report.ID), "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns_Limit(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/runs?limit=zero", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/runs?limit=5", "alice", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"labs.pdf", "labs.pdf"},
		{"../../etc/passwd", "passwd"},
		{"my report (1).docx", "my_report_1_.docx"},
		{"", "upload"},
		{"/", "upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeFileName(tt.in), "input %q", tt.in)
	}
}

func TestDecodeSummary_BadJSON(t *testing.T) {
	resp := decodeSummary(db.Summary{AnalysisText: "not json", PredictedDiseases: "nope"})
	assert.Equal(t, map[string]interface{}{"raw": "not json"}, resp.AnalysisParsed)
	assert.NotNil(t, resp.PredictedDiseasesParsed)
	assert.Empty(t, resp.PredictedDiseasesParsed)
}
