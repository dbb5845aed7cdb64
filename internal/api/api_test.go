package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfslicer/internal/ai"
	"github.com/local/pdfslicer/internal/analysis"
	"github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/pdftest"
	"github.com/local/pdfslicer/internal/storage"
	"github.com/local/pdfslicer/internal/workspace"
)

type fakeProvider struct {
	calls int32
	text  string
	err   error
	got   ai.Request
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Do(_ context.Context, req ai.Request) (ai.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	f.got = req
	if f.err != nil {
		return ai.Response{}, f.err
	}
	return ai.Response{Text: f.text}, nil
}

func testConfig(t *testing.T) config.Config {
	cfg := config.FromEnv()
	cfg.Server.AnalyzeRPS = 0
	cfg.Export.Dir = t.TempDir()
	return cfg
}

func newTestServer(t *testing.T, provider ai.Client) *httptest.Server {
	opts := Options{Config: testConfig(t)}
	if provider != nil {
		opts.Provider = provider
	}
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok", "message": "Backend service is running"}, body)
}

func TestAnalyzeValidation(t *testing.T) {
	p := &fakeProvider{text: `{"summary":"s","keywords":[]}`}
	srv := newTestServer(t, p)

	resp, body := postJSON(t, srv.URL+"/api/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Image data is required", body["error"])

	resp, body = postJSON(t, srv.URL+"/api/analyze", ``)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Image data is required", body["error"])

	resp, body = postJSON(t, srv.URL+"/api/analyze", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON body", body["error"])
	assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls))
}

func TestAnalyzeWithoutKey(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := postJSON(t, srv.URL+"/api/analyze", `{"imageData":"QUJD"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "API key not configured", body["error"])
}

func TestAnalyzeSuccess(t *testing.T) {
	p := &fakeProvider{text: "```json\n{\"summary\":\"A slide\",\"keywords\":[\"a\",\"b\",\"c\",\"d\",\"e\",\"f\"]}\n```"}
	srv := newTestServer(t, p)

	resp, body := postJSON(t, srv.URL+"/api/analyze", `{"imageData":"data:image/png;base64,QUJD"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "A slide", body["summary"])
	assert.Len(t, body["keywords"], 5)
	assert.Equal(t, "QUJD", p.got.ImageBase64)
	assert.Equal(t, ai.AnalysisPrompt, p.got.Prompt)
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota exceeded")}
	srv := newTestServer(t, p)

	resp, body := postJSON(t, srv.URL+"/api/analyze", `{"imageData":"QUJD"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to analyze image", body["error"])
	assert.Equal(t, "quota exceeded", body["message"])
}

func TestAnalyzeBreakerOpensOnTransientFailure(t *testing.T) {
	p := &fakeProvider{err: &ai.HTTPError{StatusCode: 503, Provider: "fake"}}
	srv := newTestServer(t, p)

	resp, _ := postJSON(t, srv.URL+"/api/analyze", `{"imageData":"QUJD"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp, _ = postJSON(t, srv.URL+"/api/analyze", `{"imageData":"QUJD"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}

func TestAnalyzeRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.AnalyzeRPS = 0.001
	cfg.Server.AnalyzeBurst = 1
	srv := httptest.NewServer(New(Options{Config: cfg}).Handler())
	defer srv.Close()

	resp, _ := postJSON(t, srv.URL+"/api/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, body := postJSON(t, srv.URL+"/api/analyze", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many requests", body["error"])
}

func uploadPDF(t *testing.T, url string, pdf []byte) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "deck.pdf")
	require.NoError(t, err)
	_, _ = fw.Write(pdf)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/documents", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestDocumentLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, doc := uploadPDF(t, srv.URL, pdftest.MustGenerate(2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := doc["id"].(string)
	assert.Len(t, doc["pages"], 2)
	assert.Equal(t, false, doc["aiEnabled"])
	assert.NotEmpty(t, doc["upsellUrl"])

	prev, err := http.Get(srv.URL + "/api/documents/" + id + "/pages/1/preview")
	require.NoError(t, err)
	assert.Equal(t, "image/png", prev.Header.Get("Content-Type"))
	prev.Body.Close()

	exp, err := http.Get(srv.URL + "/api/documents/" + id + "/pages/0/export?format=pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(exp.Body)
	exp.Body.Close()
	assert.Equal(t, http.StatusOK, exp.StatusCode)
	assert.Contains(t, exp.Header.Get("Content-Disposition"), `page_1.pdf`)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	resp, body := postJSON(t, srv.URL+"/api/documents/"+id+"/selection", `{"action":"all"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["selected"], 2)
	resp, body = postJSON(t, srv.URL+"/api/documents/"+id+"/selection", `{"action":"toggle","index":0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{float64(1)}, body["selected"])
	resp, _ = postJSON(t, srv.URL+"/api/documents/"+id+"/selection", `{"action":"toggle"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = postJSON(t, srv.URL+"/api/documents/"+id+"/batch/export?format=pdf", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["succeeded"])

	resp, _ = postJSON(t, srv.URL+"/api/documents/"+id+"/pages/0/analyze", ``)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/documents/"+id+"/pages/9/export?format=pdf", ``)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/documents/"+id, nil)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	got, err := http.Get(srv.URL + "/api/documents/" + id)
	require.NoError(t, err)
	got.Body.Close()
	assert.Equal(t, http.StatusNotFound, got.StatusCode)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := uploadPDF(t, srv.URL, []byte("hello world"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Failed to load PDF", body["error"])
}

func TestWorkspaceAnalyzeGoesThroughBackend(t *testing.T) {
	p := &fakeProvider{text: `{"summary":"from backend","keywords":["k"]}`}
	backend := newTestServer(t, p)

	cfg := testConfig(t)
	client := analysis.NewClient(config.ClientConfig{Enabled: true, BackendURL: backend.URL}, nil)
	reg := workspace.NewRegistry(workspace.Deps{Analyzer: analysis.NewPageAnalyzer(client)})
	srv := httptest.NewServer(New(Options{Config: cfg, Registry: reg, Sink: storage.NewLocalSink(t.TempDir()), AIEnabled: true}).Handler())
	defer srv.Close()

	_, doc := uploadPDF(t, srv.URL, pdftest.MustGenerate(1))
	id := doc["id"].(string)

	resp, body := postJSON(t, srv.URL+"/api/documents/"+id+"/pages/0/analyze", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from backend", body["summary"])

	postJSON(t, srv.URL+"/api/documents/"+id+"/selection", `{"action":"all"}`)
	resp, body = postJSON(t, srv.URL+"/api/documents/"+id+"/batch/analyze", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["skipped"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}
