package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/analysis"
	"github.com/local/pdfslicer/internal/document"
	"github.com/local/pdfslicer/internal/exporter"
	"github.com/local/pdfslicer/internal/metrics"
	"github.com/local/pdfslicer/internal/storage"
	"github.com/local/pdfslicer/internal/store"
)

// BatchOptions tune batch runs.
type BatchOptions struct {
	// Concurrency bounds the worker pool; 1 processes pages one by one.
	Concurrency int
	// Reanalyze sends pages that already have a result to the analyzer again.
	Reanalyze bool
}

// BatchItem is the outcome for one page.
type BatchItem struct {
	Index    int              `json:"index"`
	Location string           `json:"location,omitempty"`
	Analysis *analysis.Result `json:"analysis,omitempty"`
	Skipped  bool             `json:"skipped,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// BatchReport lists every selected page in ascending index order.
type BatchReport struct {
	Op        string      `json:"op"`
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Items     []BatchItem `json:"items"`
}

// beginBatch marks the workspace as batch processing and snapshots the selected pages.
func (w *Workspace) beginBatch() ([]document.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busyLocked() {
		return nil, ErrBusy
	}
	idx := w.selectedLocked()
	pages := make([]document.Page, 0, len(idx))
	for _, i := range idx {
		if i < len(w.pages) {
			pages = append(pages, w.pages[i])
		}
	}
	if len(pages) == 0 {
		return nil, nil
	}
	w.batchProcessing = true
	return pages, nil
}

func (w *Workspace) endBatch() {
	w.mu.Lock()
	w.batchProcessing = false
	w.mu.Unlock()
}

// BatchExport exports every selected page and saves it through sink.
// Failures are logged and reported per page; the run continues.
func (w *Workspace) BatchExport(ctx context.Context, format exporter.Format, sink storage.Sink) (*BatchReport, error) {
	pages, err := w.beginBatch()
	if err != nil || pages == nil {
		return &BatchReport{Op: "export", Items: []BatchItem{}}, err
	}
	defer w.endBatch()

	return w.runBatch(ctx, "export", pages, func(ctx context.Context, p document.Page) BatchItem {
		_, loc, err := w.exportOne(ctx, p, format, sink)
		if err != nil {
			return BatchItem{Index: p.Index, Error: err.Error()}
		}
		return BatchItem{Index: p.Index, Location: loc}
	}), nil
}

// BatchAnalyze analyzes every selected page, skipping pages that already have a result.
func (w *Workspace) BatchAnalyze(ctx context.Context) (*BatchReport, error) {
	if w.deps.Analyzer == nil {
		return nil, &analysis.ConfigError{Reason: "no analyzer configured"}
	}
	pages, err := w.beginBatch()
	if err != nil || pages == nil {
		return &BatchReport{Op: "analyze", Items: []BatchItem{}}, err
	}
	defer w.endBatch()

	return w.runBatch(ctx, "analyze", pages, func(ctx context.Context, p document.Page) BatchItem {
		if !w.deps.Batch.Reanalyze {
			if _, ok, err := w.deps.Analyses.Get(ctx, w.id, p.Index); err == nil && ok {
				return BatchItem{Index: p.Index, Skipped: true}
			}
		}
		res, err := w.analyzeOne(ctx, p)
		if err != nil {
			return BatchItem{Index: p.Index, Error: err.Error()}
		}
		return BatchItem{Index: p.Index, Analysis: &res}
	}), nil
}

func (w *Workspace) runBatch(ctx context.Context, op string, pages []document.Page, fn func(context.Context, document.Page) BatchItem) *BatchReport {
	start := time.Now()
	report := &BatchReport{Op: op, Total: len(pages), Items: make([]BatchItem, len(pages))}
	st := store.Status{Op: op, Status: "running", Total: len(pages), Start: &start}
	w.setStatus(ctx, st)

	var mu sync.Mutex
	record := func(pos int, item BatchItem) {
		mu.Lock()
		defer mu.Unlock()
		report.Items[pos] = item
		result := "ok"
		switch {
		case item.Error != "":
			report.Failed++
			result = "error"
			log.Error().Str("doc_id", w.id).Str("op", op).Int("page", item.Index+1).Str("error", item.Error).Msg("batch item failed")
		case item.Skipped:
			report.Skipped++
			result = "skipped"
		default:
			report.Succeeded++
		}
		metrics.IncBatchItem(op, result)
		st.Processed++
		st.Failed = report.Failed
		w.setStatus(ctx, st)
	}

	workers := w.deps.Batch.Concurrency
	if workers > len(pages) {
		workers = len(pages)
	}
	if workers <= 1 {
		for pos, p := range pages {
			record(pos, fn(ctx, p))
		}
	} else {
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for pos, p := range pages {
			wg.Add(1)
			sem <- struct{}{}
			go func(pos int, p document.Page) {
				defer wg.Done()
				defer func() { <-sem }()
				record(pos, fn(ctx, p))
			}(pos, p)
		}
		wg.Wait()
	}

	end := time.Now()
	st.Status = "done"
	st.End = &end
	w.setStatus(ctx, st)
	log.Info().
		Str("doc_id", w.id).
		Str("op", op).
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("took", end.Sub(start)).
		Msg("batch finished")
	return report
}

func (w *Workspace) setStatus(ctx context.Context, st store.Status) {
	if err := w.deps.Status.Set(ctx, w.id, st); err != nil {
		log.Warn().Err(err).Str("doc_id", w.id).Msg("failed to record batch status")
	}
}
