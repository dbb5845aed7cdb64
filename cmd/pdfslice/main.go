package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/document"
	logpkg "github.com/local/pdfslicer/internal/logger"
	"github.com/local/pdfslicer/internal/workspace"
)

func main() {
	cfg := cfgpkg.Load()
	// the CLI logs to the console only unless a file is asked for
	if os.Getenv("LOG_FILE") == "" {
		cfg.Logging.File = ""
	}
	_ = logpkg.Init(logpkg.FromConfig("pdfslice", cfg))
	defer logpkg.Close()

	root := &cobra.Command{
		Use:           "pdfslice",
		Short:         "Split a PDF into pages, export them and analyze them with AI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(splitCmd(cfg), exportCmd(cfg), analyzeCmd(cfg), sampleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logpkg.Close()
		os.Exit(1)
	}
}

// loadWorkspace fetches ref and splits it into a fresh workspace.
func loadWorkspace(ctx context.Context, cfg cfgpkg.Config, ref string, deps workspace.Deps) (*workspace.Workspace, error) {
	src, err := document.Fetch(ctx, ref, fetchOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	ws := workspace.New("", deps)
	if err := ws.Load(ctx, src); err != nil {
		return nil, err
	}
	return ws, nil
}

// fetchOptions bounds sources by MAX_UPLOAD_MB and opens exports sealed with EXPORT_PASSWORD.
func fetchOptions(cfg cfgpkg.Config) document.FetchOptions {
	return document.FetchOptions{
		MaxBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Password: cfg.Export.Password,
	}
}

// selectPages selects the pages named by list ("all" or a 1-based list like "1,3-4").
func selectPages(ws *workspace.Workspace, list string) error {
	idx, err := parsePages(list, ws.Len())
	if err != nil {
		return err
	}
	for _, i := range idx {
		ws.Toggle(i)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
