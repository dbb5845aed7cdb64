package exporter

import (
	"bytes"
	"fmt"
	_ "image/png"

	"github.com/fumiama/go-docx"

	"github.com/local/pdfslicer/internal/imagerender"
)

const (
	emuPerPixel = 9525 // EMU per pixel at 96 DPI
	wordWidth   = 600
	wordHeight  = 800
)

// buildWord returns a .docx holding one paragraph with the raster placed at 600x800.
func buildWord(raster imagerender.Raster) ([]byte, error) {
	w := docx.New().WithDefaultTheme()
	para := w.AddParagraph()
	run, err := para.AddInlineDrawing(raster.PNG)
	if err != nil {
		return nil, fmt.Errorf("add drawing: %w", err)
	}
	if len(run.Children) == 0 {
		return nil, fmt.Errorf("add drawing: empty run")
	}
	drawing, ok := run.Children[0].(*docx.Drawing)
	if !ok || drawing.Inline == nil {
		return nil, fmt.Errorf("add drawing: unexpected run content %T", run.Children[0])
	}
	drawing.Inline.Size(wordWidth*emuPerPixel, wordHeight*emuPerPixel)

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return buf.Bytes(), nil
}
