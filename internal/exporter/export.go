package exporter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/document"
	"github.com/local/pdfslicer/internal/filetype"
	"github.com/local/pdfslicer/internal/imagerender"
	"github.com/local/pdfslicer/internal/metrics"
)

// Format selects the output of an export.
type Format string

const (
	FormatPDF    Format = "PDF"   // the single-page document as is
	FormatImage  Format = "IMAGE" // high resolution PNG
	FormatWord   Format = "WORD"  // .docx with the page image
	FormatSlides Format = "PPTX"  // .pptx with one full-bleed slide
)

// Formats lists every supported format.
var Formats = []Format{FormatPDF, FormatImage, FormatWord, FormatSlides}

// ParseFormat accepts the format names and their file extensions, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "image", "png":
		return FormatImage, nil
	case "word", "docx":
		return FormatWord, nil
	case "pptx", "slides", "slide":
		return FormatSlides, nil
	}
	return "", &EncodeError{Format: Format(s), Err: fmt.Errorf("unknown format %q", s)}
}

// EncodeError reports a failure building the output document.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Artifact is the output of an export.
type Artifact struct {
	Data      []byte
	MIMEType  string
	Extension string
}

// Filename returns page_<n>.<ext> for the zero-based page index.
func (a Artifact) Filename(index int) string {
	return Filename(index, a.Extension)
}

// Filename returns page_<n>.<ext> for the zero-based page index.
func Filename(index int, ext string) string {
	return fmt.Sprintf("page_%d.%s", index+1, ext)
}

// Exporter converts page records to output artifacts.
type Exporter struct {
	renderer imagerender.Renderer
	scale    float64
}

// New returns an exporter rendering with MuPDF at imagerender.ExportScale.
func New() *Exporter {
	return NewWithRenderer(imagerender.Fitz{Purpose: "export"})
}

// NewWithRenderer returns an exporter using r for rasterization.
func NewWithRenderer(r imagerender.Renderer) *Exporter {
	return &Exporter{renderer: r, scale: imagerender.ExportScale}
}

// Export converts page into format. Raster-based formats re-render the page on every call.
func (e *Exporter) Export(ctx context.Context, page document.Page, format Format) (Artifact, error) {
	start := time.Now()
	art, err := e.export(ctx, page, format)
	if err != nil {
		metrics.IncExport(string(format), "error")
		log.Error().Err(err).Int("page", page.Index+1).Str("format", string(format)).Msg("export failed")
		return Artifact{}, err
	}
	metrics.IncExport(string(format), "ok")
	log.Info().
		Int("page", page.Index+1).
		Str("format", string(format)).
		Int("size", len(art.Data)).
		Dur("took", time.Since(start)).
		Msg("page exported")
	return art, nil
}

func (e *Exporter) export(ctx context.Context, page document.Page, format Format) (Artifact, error) {
	switch format {
	case FormatPDF:
		data := make([]byte, len(page.Document))
		copy(data, page.Document)
		return Artifact{Data: data, MIMEType: filetype.MIMEPDF, Extension: "pdf"}, nil
	case FormatImage, FormatWord, FormatSlides:
	default:
		return Artifact{}, &EncodeError{Format: format, Err: fmt.Errorf("unknown format %q", format)}
	}

	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	raster, err := e.renderer.RenderPNG(page.Document, 0, e.scale)
	if err != nil {
		return Artifact{}, err
	}

	switch format {
	case FormatImage:
		return Artifact{Data: raster.PNG, MIMEType: filetype.MIMEPNG, Extension: "png"}, nil
	case FormatWord:
		data, err := buildWord(raster)
		if err != nil {
			return Artifact{}, &EncodeError{Format: format, Err: err}
		}
		return Artifact{Data: data, MIMEType: filetype.MIMEDocx, Extension: "docx"}, nil
	default:
		data, err := buildSlides(raster)
		if err != nil {
			return Artifact{}, &EncodeError{Format: format, Err: err}
		}
		return Artifact{Data: data, MIMEType: filetype.MIMEPptx, Extension: "pptx"}, nil
	}
}
