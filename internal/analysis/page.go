package analysis

import (
	"context"

	"github.com/local/pdfslicer/internal/document"
	"github.com/local/pdfslicer/internal/imagerender"
)

// Analyzer produces a Result for a page.
type Analyzer interface {
	AnalyzePage(ctx context.Context, page document.Page) (Result, error)
}

// PageAnalyzer renders the page at export resolution and sends it to the backend.
type PageAnalyzer struct {
	Client   *Client
	Renderer imagerender.Renderer
}

func NewPageAnalyzer(c *Client) *PageAnalyzer {
	return &PageAnalyzer{Client: c, Renderer: imagerender.Fitz{Purpose: "analyze"}}
}

func (a *PageAnalyzer) AnalyzePage(ctx context.Context, page document.Page) (Result, error) {
	// Disabled mode must not pay for a render.
	if !a.Client.Enabled() {
		_, err := a.Client.AnalyzeBase64(ctx, "")
		return Result{}, err
	}
	r, err := a.Renderer.RenderPNG(page.Document, 0, imagerender.ExportScale)
	if err != nil {
		return Result{}, err
	}
	return a.Client.Analyze(ctx, r.PNG)
}
