package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/filetype"
	"github.com/local/pdfslicer/internal/imagerender"
	"github.com/local/pdfslicer/internal/metrics"
)

func init() {
	// No pdfcpu config directory under $HOME; servers run with read-only homes.
	model.ConfigPath = "disable"
}

// LoadError reports that a source document could not be split.
type LoadError struct {
	Page   int // zero-based page that failed, -1 for document-level failures
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "load document"
	if e.Page >= 0 {
		msg = fmt.Sprintf("load document: page %d", e.Page+1)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// Page is one page of a split document.
type Page struct {
	Index    int    // zero-based
	Preview  []byte // PNG at imagerender.PreviewScale
	Document []byte // self-contained single-page PDF
	Width    int    // preview pixels
	Height   int
}

// Splitter turns a multi-page PDF into page records.
type Splitter struct {
	detector *filetype.Detector
	scale    float64
}

// NewSplitter returns a splitter rendering previews at imagerender.PreviewScale.
func NewSplitter() *Splitter {
	return &Splitter{detector: filetype.New(), scale: imagerender.PreviewScale}
}

// Split is NewSplitter().Split.
func Split(ctx context.Context, src []byte) ([]Page, error) {
	return NewSplitter().Split(ctx, src)
}

// Split extracts every page of src into its own PDF and renders a preview of it.
// Either every page succeeds or a *LoadError is returned with no pages.
func (s *Splitter) Split(ctx context.Context, src []byte) ([]Page, error) {
	start := time.Now()
	pages, err := s.split(ctx, src)
	if err != nil {
		metrics.IncSplit("error", 0)
		log.Warn().Err(err).Int("size", len(src)).Msg("document split failed")
		return nil, err
	}
	metrics.IncSplit("ok", len(pages))
	log.Info().
		Int("pages", len(pages)).
		Int("size", len(src)).
		Dur("took", time.Since(start)).
		Msg("document split")
	return pages, nil
}

func (s *Splitter) split(ctx context.Context, src []byte) ([]Page, error) {
	if err := s.detector.RequirePDF(src); err != nil {
		return nil, &LoadError{Page: -1, Reason: "unsupported input", Err: err}
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadContext(bytes.NewReader(src), conf)
	if err != nil {
		return nil, &LoadError{Page: -1, Reason: "parse", Err: err}
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, &LoadError{Page: -1, Reason: "validate", Err: err}
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, &LoadError{Page: -1, Reason: "page count", Err: err}
	}
	n := pdfCtx.PageCount
	if n <= 0 {
		return nil, &LoadError{Page: -1, Reason: "document has no pages"}
	}

	// Previews are rendered from the source, one MuPDF handle for all pages.
	rdoc, err := imagerender.Open(src)
	if err != nil {
		return nil, &LoadError{Page: -1, Reason: "open renderer", Err: err}
	}
	defer rdoc.Close()
	if rdoc.NumPage() != n {
		return nil, &LoadError{Page: -1, Reason: fmt.Sprintf("page count mismatch: parser %d, renderer %d", n, rdoc.NumPage())}
	}

	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &LoadError{Page: i, Reason: "cancelled", Err: err}
		}

		single, err := extractPage(pdfCtx, i)
		if err != nil {
			return nil, &LoadError{Page: i, Reason: "extract", Err: err}
		}

		renderStart := time.Now()
		preview, err := rdoc.RenderPNG(i, s.scale)
		if err != nil {
			return nil, &LoadError{Page: i, Reason: "render preview", Err: err}
		}
		metrics.ObserveRender("preview", time.Since(renderStart))

		pages = append(pages, Page{
			Index:    i,
			Preview:  preview.PNG,
			Document: single,
			Width:    preview.Width,
			Height:   preview.Height,
		})
		log.Debug().Int("page", i+1).Int("pdf_size", len(single)).Int("preview_size", len(preview.PNG)).Msg("page extracted")
	}
	return pages, nil
}

// extractPage writes zero-based page i of pdfCtx as a standalone PDF.
func extractPage(pdfCtx *model.Context, i int) ([]byte, error) {
	pageCtx, err := pdfcpu.ExtractPages(pdfCtx, []int{i + 1}, false)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.WriteContext(pageCtx, &buf); err != nil {
		return nil, fmt.Errorf("write page: %w", err)
	}
	return buf.Bytes(), nil
}
