// Package pdftest builds labeled sample PDFs and probes page text. Tests use it
// for fixtures and the CLI uses it for the sample command.
package pdftest

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Options controls sample generation.
type Options struct {
	// Orientation is "P" or "L".
	Orientation string
	// Size is a gofpdf page size name such as "A4" or "Letter".
	Size string
	// Title is printed under the page label when set.
	Title string
}

// Label returns the text printed on the zero-based page i.
func Label(i int) string { return fmt.Sprintf("Page %d", i+1) }

// Generate returns a PDF with n pages, each carrying Label(i) in large type
// and a colored band so rasters are visibly non-blank.
func Generate(n int, opts Options) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("page count must be positive, got %d", n)
	}
	if opts.Orientation == "" {
		opts.Orientation = "P"
	}
	if opts.Size == "" {
		opts.Size = "A4"
	}

	pdf := gofpdf.New(opts.Orientation, "mm", opts.Size, "")
	// The footer sits below the default break margin.
	pdf.SetAutoPageBreak(false, 0)
	w, h := pdf.GetPageSize()
	for i := 0; i < n; i++ {
		pdf.AddPage()
		r, g, b := bandColor(i)
		pdf.SetFillColor(r, g, b)
		pdf.Rect(0, 0, w, h/6, "F")

		pdf.SetFont("Helvetica", "B", 48)
		pdf.SetXY(0, h/3)
		pdf.CellFormat(w, 20, Label(i), "", 1, "C", false, 0, "")
		if opts.Title != "" {
			pdf.SetFont("Helvetica", "", 16)
			pdf.CellFormat(w, 10, opts.Title, "", 1, "C", false, 0, "")
		}
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetXY(10, h-20)
		pdf.Cell(0, 10, fmt.Sprintf("%d / %d", i+1, n))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// MustGenerate is Generate for test fixtures.
func MustGenerate(n int) []byte {
	b, err := Generate(n, Options{})
	if err != nil {
		panic(err)
	}
	return b
}

func bandColor(i int) (int, int, int) {
	palette := [][3]int{{66, 133, 244}, {219, 68, 55}, {244, 180, 0}, {15, 157, 88}}
	c := palette[i%len(palette)]
	return c[0], c[1], c[2]
}
