package pdftest

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	fitz "github.com/gen2brain/go-fitz"
)

// PageProbe captures the result of probing a single PDF page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes a text probe over a document.
type Diagnostics struct {
	TotalPages int         `json:"total_pages"`
	Probes     []PageProbe `json:"probes"`
	DurationMs int64       `json:"duration_ms"`
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

func stripWhitespace(s string) string {
	return whitespaceRegex.ReplaceAllString(s, "")
}

// PageText returns the extracted text of page i of an in-memory PDF.
func PageText(pdf []byte, i int) (string, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	if i < 0 || i >= doc.NumPage() {
		return "", fmt.Errorf("page %d out of range (%d pages)", i, doc.NumPage())
	}
	return doc.Text(i)
}

// Probe counts non-whitespace characters on the given pages (all pages when
// pages is nil).
func Probe(pdf []byte, pages []int) (*Diagnostics, error) {
	start := time.Now()
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	var idx []int
	if pages == nil {
		idx = make([]int, total)
		for i := range idx {
			idx[i] = i
		}
	} else {
		idx = NormalizePages(pages, total)
	}

	diag := &Diagnostics{TotalPages: total}
	for _, i := range idx {
		p := PageProbe{PageIndex: i}
		text, err := doc.Text(i)
		if err != nil {
			p.Err = err.Error()
		} else {
			p.CharCount = len([]rune(stripWhitespace(text)))
		}
		diag.Probes = append(diag.Probes, p)
	}
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag, nil
}

// NormalizePages ensures indices are unique, in-range, and sorted.
func NormalizePages(pages []int, total int) []int {
	m := make(map[int]struct{})
	for _, p := range pages {
		if p < 0 || p >= total {
			continue
		}
		m[p] = struct{}{}
	}
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
