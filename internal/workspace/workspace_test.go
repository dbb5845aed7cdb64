package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfslicer/internal/analysis"
	"github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/document"
	"github.com/local/pdfslicer/internal/exporter"
	"github.com/local/pdfslicer/internal/pdftest"
	"github.com/local/pdfslicer/internal/storage"
	"github.com/local/pdfslicer/internal/store"
)

type fakeSplitter struct {
	n   int
	err error
}

func (f fakeSplitter) Split(_ context.Context, src []byte) ([]document.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	pages := make([]document.Page, f.n)
	for i := range pages {
		pages[i] = document.Page{Index: i, Document: []byte(fmt.Sprintf("page-%d", i))}
	}
	return pages, nil
}

type fakeExporter struct {
	mu    sync.Mutex
	order []int
	fail  map[int]bool
}

func (f *fakeExporter) Export(_ context.Context, p document.Page, format exporter.Format) (exporter.Artifact, error) {
	f.mu.Lock()
	f.order = append(f.order, p.Index)
	f.mu.Unlock()
	if f.fail[p.Index] {
		return exporter.Artifact{}, &exporter.EncodeError{Format: format, Err: errors.New("boom")}
	}
	return exporter.Artifact{Data: p.Document, MIMEType: "application/pdf", Extension: "pdf"}, nil
}

type fakeAnalyzer struct {
	calls int32
	block chan struct{}
	fail  map[int]bool
}

func (f *fakeAnalyzer) AnalyzePage(_ context.Context, p document.Page) (analysis.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.fail[p.Index] {
		return analysis.Result{}, &analysis.AnalysisError{Status: 500, Message: "upstream"}
	}
	return analysis.Result{Summary: fmt.Sprintf("summary %d", p.Index), Keywords: []string{"k"}}, nil
}

type memSink struct {
	mu    sync.Mutex
	names []string
}

func (s *memSink) Save(_ context.Context, name string, _ []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return "mem://" + name, nil
}

func loaded(t *testing.T, n int, deps Deps) *Workspace {
	deps.Splitter = fakeSplitter{n: n}
	w := New("doc", deps)
	require.NoError(t, w.Load(context.Background(), []byte("%PDF")))
	return w
}

func TestToggleIsAnInvolution(t *testing.T) {
	w := loaded(t, 3, Deps{})

	assert.True(t, w.Toggle(1))
	assert.True(t, w.IsSelected(1))
	assert.False(t, w.Toggle(1))
	assert.False(t, w.IsSelected(1))

	assert.False(t, w.Toggle(7))
	assert.False(t, w.Toggle(-1))
	assert.Empty(t, w.Selected())
}

func TestSelectAllAndDeselectAll(t *testing.T) {
	w := loaded(t, 4, Deps{})
	w.Toggle(2)
	w.SelectAll()
	assert.Equal(t, []int{0, 1, 2, 3}, w.Selected())
	w.DeselectAll()
	assert.Empty(t, w.Selected())
}

func TestLoadClearsState(t *testing.T) {
	an := &fakeAnalyzer{}
	w := loaded(t, 2, Deps{Analyzer: an})
	w.SelectAll()
	_, err := w.AnalyzePage(context.Background(), 0)
	require.NoError(t, err)

	require.NoError(t, w.Load(context.Background(), []byte("%PDF")))
	assert.Empty(t, w.Selected())
	all, err := w.Analyses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	w.deps.Splitter = fakeSplitter{err: &document.LoadError{Page: -1, Reason: "bad"}}
	err = w.Load(context.Background(), []byte("x"))
	assert.True(t, document.IsLoadError(err))
	assert.Equal(t, 0, w.Len())
}

type unclearableStore struct {
	*store.MemoryStore
	err error
}

func (s unclearableStore) Clear(context.Context, string) error { return s.err }

type undeletableStatus struct {
	*store.MemoryStatus
	err error
}

func (s undeletableStatus) Delete(context.Context, string) error { return s.err }

func TestLoadFailsWhenAnalysesCannotBeCleared(t *testing.T) {
	clearErr := errors.New("redis down")
	statusErr := errors.New("status gone")
	an := &fakeAnalyzer{}
	w := New("doc", Deps{
		Splitter: fakeSplitter{n: 2},
		Analyzer: an,
		Analyses: unclearableStore{MemoryStore: store.NewMemoryStore(), err: clearErr},
		Status:   undeletableStatus{MemoryStatus: store.NewMemoryStatus(), err: statusErr},
	})

	err := w.Load(context.Background(), []byte("%PDF"))
	assert.ErrorIs(t, err, clearErr)
	assert.Equal(t, 0, w.Len())

	err = w.Reset(context.Background())
	assert.ErrorIs(t, err, clearErr)
	assert.ErrorIs(t, err, statusErr)

	w.deps.Analyses = store.NewMemoryStore()
	require.NoError(t, w.Load(context.Background(), []byte("%PDF")))
	assert.Equal(t, 2, w.Len())
}

func TestExportPageSavesThroughSink(t *testing.T) {
	w := loaded(t, 2, Deps{Exporter: &fakeExporter{}})
	sink := &memSink{}
	art, loc, err := w.ExportPage(context.Background(), 1, exporter.FormatPDF, sink)
	require.NoError(t, err)
	assert.Equal(t, []byte("page-1"), art.Data)
	assert.Equal(t, "mem://doc/page_2.pdf", loc)

	_, _, err = w.ExportPage(context.Background(), 5, exporter.FormatPDF, nil)
	assert.ErrorIs(t, err, ErrPageOutOfRange)

	id, batch := w.Busy()
	assert.Nil(t, id)
	assert.False(t, batch)
}

func TestBatchExportAscendingAndContinuesOnError(t *testing.T) {
	ex := &fakeExporter{fail: map[int]bool{1: true}}
	w := loaded(t, 4, Deps{Exporter: ex})
	w.Toggle(3)
	w.Toggle(0)
	w.Toggle(1)
	sink := &memSink{}

	rep, err := w.BatchExport(context.Background(), exporter.FormatPDF, sink)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, ex.order)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.NotEmpty(t, rep.Items[1].Error)
	assert.Equal(t, []string{"doc/page_1.pdf", "doc/page_4.pdf"}, sink.names)

	st, ok, err := w.BatchStatus(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", st.Status)
	assert.Equal(t, 3, st.Processed)
	assert.Equal(t, 1, st.Failed)
}

func TestBatchOnEmptySelectionIsNoop(t *testing.T) {
	ex := &fakeExporter{}
	w := loaded(t, 2, Deps{Exporter: ex})
	rep, err := w.BatchExport(context.Background(), exporter.FormatPDF, &memSink{})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Total)
	assert.Empty(t, ex.order)
}

func TestBatchAnalyzeSkipsAnalyzedPages(t *testing.T) {
	an := &fakeAnalyzer{fail: map[int]bool{2: true}}
	w := loaded(t, 3, Deps{Analyzer: an, Batch: BatchOptions{Concurrency: 2}})
	_, err := w.AnalyzePage(context.Background(), 0)
	require.NoError(t, err)

	w.SelectAll()
	rep, err := w.BatchAnalyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&an.calls))
	assert.True(t, rep.Items[0].Skipped)
	assert.Equal(t, "summary 1", rep.Items[1].Analysis.Summary)
	assert.NotEmpty(t, rep.Items[2].Error)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)

	all, err := w.Analyses(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBatchAnalyzeReanalyzeRefreshesResults(t *testing.T) {
	an := &fakeAnalyzer{}
	w := loaded(t, 2, Deps{Analyzer: an, Batch: BatchOptions{Reanalyze: true}})
	w.SelectAll()

	_, err := w.BatchAnalyze(context.Background())
	require.NoError(t, err)
	rep, err := w.BatchAnalyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(4), atomic.LoadInt32(&an.calls))
	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, "summary 1", rep.Items[1].Analysis.Summary)
}

func TestBusyRejectsNewTriggers(t *testing.T) {
	an := &fakeAnalyzer{block: make(chan struct{})}
	w := loaded(t, 2, Deps{Analyzer: an})

	done := make(chan error, 1)
	go func() {
		_, err := w.AnalyzePage(context.Background(), 0)
		done <- err
	}()
	require.Eventually(t, func() bool {
		id, _ := w.Busy()
		return id != nil && *id == 0
	}, time.Second, 5*time.Millisecond)

	_, err := w.AnalyzePage(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBusy)
	w.SelectAll()
	_, err = w.BatchAnalyze(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, w.Load(context.Background(), []byte("%PDF")), ErrBusy)

	close(an.block)
	require.NoError(t, <-done)
	id, _ := w.Busy()
	assert.Nil(t, id)
}

func TestAnalyzeDisabledMakesNoRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := analysis.NewClient(config.ClientConfig{Enabled: false, BackendURL: srv.URL}, nil)
	w := loaded(t, 1, Deps{Analyzer: analysis.NewPageAnalyzer(client)})
	_, err := w.AnalyzePage(context.Background(), 0)
	assert.True(t, analysis.IsConfigError(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestBatchAnalyzeMemoizesAcrossRuns(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"summary":"s","keywords":["a"]}`))
	}))
	defer srv.Close()

	client := analysis.NewClient(config.ClientConfig{Enabled: true, BackendURL: srv.URL}, nil)
	w := New("real", Deps{Analyzer: analysis.NewPageAnalyzer(client)})
	require.NoError(t, w.Load(context.Background(), pdftest.MustGenerate(1)))
	w.SelectAll()

	_, err := w.BatchAnalyze(context.Background())
	require.NoError(t, err)
	rep, err := w.BatchAnalyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, rep.Items[0].Skipped)
}

func TestRealExportToLocalSink(t *testing.T) {
	w := New("", Deps{})
	require.NoError(t, w.Load(context.Background(), pdftest.MustGenerate(2)))
	w.SelectAll()
	dir := t.TempDir()
	rep, err := w.BatchExport(context.Background(), exporter.FormatImage, storage.NewLocalSink(dir))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Succeeded)
	assert.FileExists(t, rep.Items[1].Location)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Deps{Splitter: fakeSplitter{n: 1}})
	w := r.Create()
	got, ok := r.Get(w.ID())
	require.True(t, ok)
	assert.Same(t, w, got)
	assert.Equal(t, 1, r.Len())

	ok, err := r.Delete(context.Background(), w.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok = r.Get(w.ID())
	assert.False(t, ok)

	ok, err = r.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
