package workspace

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/analysis"
	"github.com/local/pdfslicer/internal/document"
	"github.com/local/pdfslicer/internal/exporter"
	"github.com/local/pdfslicer/internal/storage"
	"github.com/local/pdfslicer/internal/store"
)

var (
	// ErrBusy is returned when a page or batch operation is already running.
	ErrBusy = errors.New("workspace is busy")
	// ErrPageOutOfRange is returned for an index outside the loaded pages.
	ErrPageOutOfRange = errors.New("page index out of range")
)

// Splitter is implemented by *document.Splitter.
type Splitter interface {
	Split(ctx context.Context, src []byte) ([]document.Page, error)
}

// Exporter is implemented by *exporter.Exporter.
type Exporter interface {
	Export(ctx context.Context, page document.Page, format exporter.Format) (exporter.Artifact, error)
}

// Deps are the collaborators of a workspace.
type Deps struct {
	Splitter Splitter
	Exporter Exporter
	Analyzer analysis.Analyzer
	Analyses store.AnalysisStore
	Status   store.StatusStore
	Batch    BatchOptions
}

func (d Deps) withDefaults() Deps {
	if d.Splitter == nil {
		d.Splitter = document.NewSplitter()
	}
	if d.Exporter == nil {
		d.Exporter = exporter.New()
	}
	if d.Analyses == nil {
		d.Analyses = store.NewMemoryStore()
	}
	if d.Status == nil {
		d.Status = store.NewMemoryStatus()
	}
	if d.Batch.Concurrency <= 0 {
		d.Batch.Concurrency = 1
	}
	return d
}

// Workspace is one loaded document: its pages, the selection, analysis results
// and the busy state. All methods are safe for concurrent use.
type Workspace struct {
	id   string
	deps Deps

	mu              sync.Mutex
	pages           []document.Page
	selected        map[int]struct{}
	processingID    *int
	batchProcessing bool
	loading         bool
}

// New returns an empty workspace. id namespaces stored analyses and saved artifacts.
func New(id string, deps Deps) *Workspace {
	return &Workspace{id: id, deps: deps.withDefaults(), selected: map[int]struct{}{}}
}

func (w *Workspace) ID() string { return w.id }

func (w *Workspace) busyLocked() bool {
	return w.processingID != nil || w.batchProcessing || w.loading
}

// Load splits src and replaces the page list. Selection and analyses are cleared
// first, so a failed load leaves an empty workspace.
func (w *Workspace) Load(ctx context.Context, src []byte) error {
	w.mu.Lock()
	if w.busyLocked() {
		w.mu.Unlock()
		return ErrBusy
	}
	w.loading = true
	w.pages = nil
	w.selected = map[int]struct{}{}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.loading = false
		w.mu.Unlock()
	}()

	if err := w.deps.Analyses.Clear(ctx, w.id); err != nil {
		log.Error().Err(err).Str("doc_id", w.id).Msg("failed to clear analyses")
		return fmt.Errorf("clear analyses: %w", err)
	}
	pages, err := w.deps.Splitter.Split(ctx, src)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.pages = pages
	w.mu.Unlock()
	log.Info().Str("doc_id", w.id).Int("pages", len(pages)).Msg("document loaded")
	return nil
}

// Reset drops pages, selection and analyses.
func (w *Workspace) Reset(ctx context.Context) error {
	w.mu.Lock()
	if w.busyLocked() {
		w.mu.Unlock()
		return ErrBusy
	}
	w.pages = nil
	w.selected = map[int]struct{}{}
	w.mu.Unlock()
	return errors.Join(
		w.deps.Status.Delete(ctx, w.id),
		w.deps.Analyses.Clear(ctx, w.id),
	)
}

// Len is the number of loaded pages.
func (w *Workspace) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pages)
}

// Pages returns the loaded pages in index order.
func (w *Workspace) Pages() []document.Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]document.Page(nil), w.pages...)
}

// Page returns the page at index i.
func (w *Workspace) Page(i int) (document.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.pages) {
		return document.Page{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, i)
	}
	return w.pages[i], nil
}

// Toggle flips the selection of page i and reports whether it is now selected.
// Indices outside the page list are ignored.
func (w *Workspace) Toggle(i int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.pages) {
		return false
	}
	if _, ok := w.selected[i]; ok {
		delete(w.selected, i)
		return false
	}
	w.selected[i] = struct{}{}
	return true
}

func (w *Workspace) SelectAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pages {
		w.selected[p.Index] = struct{}{}
	}
}

func (w *Workspace) DeselectAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selected = map[int]struct{}{}
}

func (w *Workspace) IsSelected(i int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.selected[i]
	return ok
}

// Selected returns the selected indices in ascending order.
func (w *Workspace) Selected() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedLocked()
}

func (w *Workspace) selectedLocked() []int {
	out := make([]int, 0, len(w.selected))
	for i := range w.selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Busy reports the page being processed (or nil) and whether a batch is running.
func (w *Workspace) Busy() (processingID *int, batch bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processingID != nil {
		id := *w.processingID
		processingID = &id
	}
	return processingID, w.batchProcessing
}

// Analysis returns the stored result for page i.
func (w *Workspace) Analysis(ctx context.Context, i int) (analysis.Result, bool, error) {
	return w.deps.Analyses.Get(ctx, w.id, i)
}

// Analyses returns every stored result keyed by page index.
func (w *Workspace) Analyses(ctx context.Context) (map[int]analysis.Result, error) {
	return w.deps.Analyses.List(ctx, w.id)
}

// BatchStatus returns the progress of the last batch run.
func (w *Workspace) BatchStatus(ctx context.Context) (store.Status, bool, error) {
	return w.deps.Status.Get(ctx, w.id)
}

// beginPage marks page i as processing.
func (w *Workspace) beginPage(i int) (document.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.pages) {
		return document.Page{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, i)
	}
	if w.busyLocked() {
		return document.Page{}, ErrBusy
	}
	id := i
	w.processingID = &id
	return w.pages[i], nil
}

func (w *Workspace) endPage() {
	w.mu.Lock()
	w.processingID = nil
	w.mu.Unlock()
}

func (w *Workspace) artifactName(index int, art exporter.Artifact) string {
	return path.Join(w.id, art.Filename(index))
}

// ExportPage exports page i. When sink is non-nil the artifact is saved and its
// location returned.
func (w *Workspace) ExportPage(ctx context.Context, i int, format exporter.Format, sink storage.Sink) (exporter.Artifact, string, error) {
	page, err := w.beginPage(i)
	if err != nil {
		return exporter.Artifact{}, "", err
	}
	defer w.endPage()

	art, loc, err := w.exportOne(ctx, page, format, sink)
	if err != nil {
		log.Error().Err(err).Str("doc_id", w.id).Int("page", i+1).Msg("page export failed")
	}
	return art, loc, err
}

func (w *Workspace) exportOne(ctx context.Context, page document.Page, format exporter.Format, sink storage.Sink) (exporter.Artifact, string, error) {
	art, err := w.deps.Exporter.Export(ctx, page, format)
	if err != nil {
		return exporter.Artifact{}, "", err
	}
	if sink == nil {
		return art, "", nil
	}
	loc, err := sink.Save(ctx, w.artifactName(page.Index, art), art.Data, art.MIMEType)
	if err != nil {
		return exporter.Artifact{}, "", fmt.Errorf("save %s: %w", art.Filename(page.Index), err)
	}
	return art, loc, nil
}

// AnalyzePage analyzes page i and stores the result, replacing any earlier one.
func (w *Workspace) AnalyzePage(ctx context.Context, i int) (analysis.Result, error) {
	if w.deps.Analyzer == nil {
		return analysis.Result{}, &analysis.ConfigError{Reason: "no analyzer configured"}
	}
	page, err := w.beginPage(i)
	if err != nil {
		return analysis.Result{}, err
	}
	defer w.endPage()

	res, err := w.analyzeOne(ctx, page)
	if err != nil {
		log.Error().Err(err).Str("doc_id", w.id).Int("page", i+1).Msg("page analysis failed")
	}
	return res, err
}

func (w *Workspace) analyzeOne(ctx context.Context, page document.Page) (analysis.Result, error) {
	res, err := w.deps.Analyzer.AnalyzePage(ctx, page)
	if err != nil {
		return analysis.Result{}, err
	}
	if err := w.deps.Analyses.Put(ctx, w.id, page.Index, res); err != nil {
		return analysis.Result{}, fmt.Errorf("store analysis: %w", err)
	}
	return res, nil
}
