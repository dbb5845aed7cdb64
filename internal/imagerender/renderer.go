package imagerender

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/metrics"
)

const (
	// BaseDPI is the resolution of scale 1.0: one PDF point per pixel.
	BaseDPI = 72.0
	// PreviewScale is used for thumbnails.
	PreviewScale = 0.5
	// ExportScale is used for every raster that leaves the process.
	ExportScale = 2.0
)

// RenderError reports a rasterization failure.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page+1, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Raster is an encoded PNG plus its pixel dimensions.
type Raster struct {
	PNG    []byte
	Width  int
	Height int
}

// DataURI returns the raster as a data:image/png;base64 URI.
func (r Raster) DataURI() string {
	return "data:image/png;base64," + EncodeToBase64(r.PNG)
}

// Renderer rasterizes PDF pages held in memory.
type Renderer interface {
	RenderPNG(pdf []byte, pageIndex int, scale float64) (Raster, error)
}

// Fitz renders with MuPDF through go-fitz.
type Fitz struct {
	// Purpose labels the render latency metric.
	Purpose string
}

// RenderPNG renders the zero-based page at the given scale.
func (f Fitz) RenderPNG(pdf []byte, pageIndex int, scale float64) (Raster, error) {
	return RenderPNG(pdf, pageIndex, scale, f.Purpose)
}

// RenderPNG renders a PDF page held in memory as PNG.
func RenderPNG(pdf []byte, pageIndex int, scale float64, purpose string) (Raster, error) {
	start := time.Now()
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return Raster{}, &RenderError{Page: pageIndex, Err: fmt.Errorf("open pdf: %w", err)}
	}
	defer doc.Close()

	img, err := renderOpened(doc, pageIndex, scale)
	if err != nil {
		return Raster{}, err
	}
	r, err := encodePNG(img, pageIndex)
	if err != nil {
		return Raster{}, err
	}
	if purpose != "" {
		metrics.ObserveRender(purpose, time.Since(start))
	}
	log.Debug().
		Int("page", pageIndex+1).
		Float64("scale", scale).
		Int("width", r.Width).
		Int("height", r.Height).
		Int("png_size", len(r.PNG)).
		Msg("rendered page to PNG")
	return r, nil
}

// Document is an opened MuPDF document, for callers rendering several pages
// of the same source.
type Document struct {
	doc *fitz.Document
}

// Open parses pdf with MuPDF.
func Open(pdf []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, &RenderError{Page: 0, Err: fmt.Errorf("open pdf: %w", err)}
	}
	return &Document{doc: doc}, nil
}

// NumPage returns the page count seen by MuPDF.
func (d *Document) NumPage() int { return d.doc.NumPage() }

// RenderPNG renders one page of the opened document.
func (d *Document) RenderPNG(pageIndex int, scale float64) (Raster, error) {
	img, err := renderOpened(d.doc, pageIndex, scale)
	if err != nil {
		return Raster{}, err
	}
	return encodePNG(img, pageIndex)
}

// Close releases MuPDF resources.
func (d *Document) Close() error { return d.doc.Close() }

func renderOpened(doc *fitz.Document, pageIndex int, scale float64) (image.Image, error) {
	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return nil, &RenderError{Page: pageIndex, Err: fmt.Errorf("page out of range (document has %d pages)", doc.NumPage())}
	}
	if scale <= 0 {
		scale = 1
	}
	img, err := doc.ImageDPI(pageIndex, BaseDPI*scale)
	if err != nil {
		return nil, &RenderError{Page: pageIndex, Err: err}
	}
	return img, nil
}

func encodePNG(img image.Image, pageIndex int) (Raster, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Raster{}, &RenderError{Page: pageIndex, Err: fmt.Errorf("encode png: %w", err)}
	}
	b := img.Bounds()
	return Raster{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// PageCount returns how many pages MuPDF finds in pdf.
func PageCount(pdf []byte) (int, error) {
	d, err := Open(pdf)
	if err != nil {
		return 0, err
	}
	defer d.Close()
	return d.NumPage(), nil
}

// EncodeToBase64 converts binary data to base64 string
func EncodeToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFromBase64 converts base64 string back to binary data
func DecodeFromBase64(b64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(b64)
}

// StripDataURI removes a leading "data:<mime>;base64," prefix if present.
func StripDataURI(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

// GetImageDimensions extracts dimensions from PNG bytes
func GetImageDimensions(pngBytes []byte) (width, height int, err error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(pngBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
