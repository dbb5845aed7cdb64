package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/local/pdfslicer/internal/analysis"
	cfgpkg "github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/document"
	"github.com/local/pdfslicer/internal/exporter"
	"github.com/local/pdfslicer/internal/pdftest"
	"github.com/local/pdfslicer/internal/storage"
	"github.com/local/pdfslicer/internal/workspace"
)

type splitPage struct {
	Index    int    `json:"index"`
	PDF      string `json:"pdf"`
	Preview  string `json:"preview"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	TextRune int    `json:"text_chars"`
}

func splitCmd(cfg cfgpkg.Config) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "split <pdf>",
		Short: "Write every page as its own PDF plus a preview PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := document.Fetch(ctx, args[0], fetchOptions(cfg))
			if err != nil {
				return err
			}
			pages, err := document.Split(ctx, src)
			if err != nil {
				return err
			}
			diag, err := pdftest.Probe(src, nil)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}

			res := make([]splitPage, 0, len(pages))
			for _, p := range pages {
				sp := splitPage{
					Index:   p.Index,
					PDF:     filepath.Join(out, exporter.Filename(p.Index, "pdf")),
					Preview: filepath.Join(out, fmt.Sprintf("page_%d_preview.png", p.Index+1)),
					Width:   p.Width,
					Height:  p.Height,
				}
				if p.Index < len(diag.Probes) {
					sp.TextRune = diag.Probes[p.Index].CharCount
				}
				if err := os.WriteFile(sp.PDF, p.Document, 0o644); err != nil {
					return err
				}
				if err := os.WriteFile(sp.Preview, p.Preview, 0o644); err != nil {
					return err
				}
				res = append(res, sp)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "pages", "output directory")
	return cmd
}

func exportCmd(cfg cfgpkg.Config) *cobra.Command {
	var out, pages, format string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "export <pdf>",
		Short: "Export selected pages as pdf, png, docx or pptx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}
			var sink storage.Sink
			if out != "" {
				sink = storage.NewLocalSink(out)
			} else if sink, err = storage.New(ctx, cfg.Export); err != nil {
				return err
			}

			ws, err := loadWorkspace(ctx, cfg, args[0], workspace.Deps{Batch: workspace.BatchOptions{Concurrency: concurrency}})
			if err != nil {
				return err
			}
			if err := selectPages(ws, pages); err != nil {
				return err
			}
			rep, err := ws.BatchExport(ctx, f, sink)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default: EXPORT_SINK)")
	cmd.Flags().StringVarP(&pages, "pages", "p", "all", "pages to export, e.g. 1,3-4 or all")
	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "pdf|png|docx|pptx")
	cmd.Flags().IntVar(&concurrency, "concurrency", cfg.Export.BatchConcurrency, "pages exported in parallel")
	return cmd
}

func analyzeCmd(cfg cfgpkg.Config) *cobra.Command {
	var pages, backend string
	var reanalyze bool

	cmd := &cobra.Command{
		Use:   "analyze <pdf>",
		Short: "Summarize selected pages through the analysis backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ccfg := cfg.Client
			if backend != "" {
				ccfg.BackendURL = backend
			}
			client := analysis.NewClient(ccfg, nil)
			if !client.Enabled() {
				return errors.New("AI analysis is disabled (set AI_CLIENT_KEY); full version: " + client.UpsellURL())
			}

			ws, err := loadWorkspace(ctx, cfg, args[0], workspace.Deps{
				Analyzer: analysis.NewPageAnalyzer(client),
				Batch:    workspace.BatchOptions{Concurrency: cfg.Export.BatchConcurrency, Reanalyze: reanalyze},
			})
			if err != nil {
				return err
			}
			if err := selectPages(ws, pages); err != nil {
				return err
			}
			rep, err := ws.BatchAnalyze(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVarP(&pages, "pages", "p", "all", "pages to analyze, e.g. 1,3-4 or all")
	cmd.Flags().StringVar(&backend, "backend", "", "backend URL (default: BACKEND_URL)")
	cmd.Flags().BoolVar(&reanalyze, "reanalyze", cfg.Export.BatchReanalyze, "analyze pages again even when a result exists")
	return cmd
}

func sampleCmd() *cobra.Command {
	var out, size, orientation, title string
	var n int

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a labeled multi-page test PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pdf, err := pdftest.Generate(n, pdftest.Options{Orientation: orientation, Size: size, Title: title})
			if err != nil {
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, pdf, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d pages to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "pages", "n", 5, "number of pages")
	cmd.Flags().StringVarP(&out, "out", "o", "test.pdf", "output file")
	cmd.Flags().StringVar(&size, "size", "A4", "page size")
	cmd.Flags().StringVar(&orientation, "orientation", "P", "P or L")
	cmd.Flags().StringVar(&title, "title", "", "subtitle printed on every page")
	return cmd
}
