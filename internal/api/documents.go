package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/analysis"
	"github.com/local/pdfslicer/internal/exporter"
	"github.com/local/pdfslicer/internal/workspace"
)

type pageView struct {
	Index    int              `json:"index"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Selected bool             `json:"selected"`
	Analysis *analysis.Result `json:"analysis,omitempty"`
}

type documentView struct {
	ID              string     `json:"id"`
	Pages           []pageView `json:"pages"`
	Selected        []int      `json:"selected"`
	ProcessingID    *int       `json:"processingId"`
	BatchProcessing bool       `json:"batchProcessing"`
	AIEnabled       bool       `json:"aiEnabled"`
	UpsellURL       string     `json:"upsellUrl,omitempty"`
}

func (s *Server) view(ctx context.Context, ws *workspace.Workspace) documentView {
	analyses, err := ws.Analyses(ctx)
	if err != nil {
		log.Warn().Err(err).Str("doc_id", ws.ID()).Msg("failed to list analyses")
	}
	pages := ws.Pages()
	v := documentView{ID: ws.ID(), Pages: make([]pageView, 0, len(pages)), Selected: ws.Selected(), AIEnabled: s.aiEnabled}
	for _, p := range pages {
		pv := pageView{Index: p.Index, Width: p.Width, Height: p.Height, Selected: ws.IsSelected(p.Index)}
		if a, ok := analyses[p.Index]; ok {
			a := a
			pv.Analysis = &a
		}
		v.Pages = append(v.Pages, pv)
	}
	v.ProcessingID, v.BatchProcessing = ws.Busy()
	if !s.aiEnabled {
		v.UpsellURL = s.upsellURL
	}
	return v
}

func (s *Server) lookup(r *http.Request) (*workspace.Workspace, error) {
	ws, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		return nil, errNotFound
	}
	return ws, nil
}

func pageIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, &ValidationError{Field: "index", Message: "Invalid page index"}
	}
	return i, nil
}

// readUpload returns the "file" part of a multipart form or the raw body.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = body
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, &ValidationError{Field: "file", Message: "Invalid multipart form"}
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, &ValidationError{Field: "file", Message: "Missing file"}
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &ValidationError{Field: "file", Message: "File too large"}
		}
		return nil, err
	}
	return data, nil
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(data) == 0 {
		s.writeError(w, &ValidationError{Field: "file", Message: "Missing file"})
		return
	}
	ws := s.registry.Create()
	if err := ws.Load(r.Context(), data); err != nil {
		_, _ = s.registry.Delete(r.Context(), ws.ID())
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(r.Context(), ws))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(r.Context(), ws))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ok, err := s.registry.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeError(w, errNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	i, err := pageIndex(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := ws.Page(i)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(p.Preview)
}

func formatParam(r *http.Request) (exporter.Format, error) {
	f, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return "", &ValidationError{Field: "format", Message: err.Error()}
	}
	return f, nil
}

// handleExport streams the artifact as an attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.exportPage(w, r, false)
}

// handleSaveExport saves the artifact through the configured sink.
func (s *Server) handleSaveExport(w http.ResponseWriter, r *http.Request) {
	s.exportPage(w, r, true)
}

func (s *Server) exportPage(w http.ResponseWriter, r *http.Request, save bool) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	i, err := pageIndex(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	format, err := formatParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !save {
		art, _, err := ws.ExportPage(r.Context(), i, format, nil)
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", art.MIMEType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename(i)))
		w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
		_, _ = w.Write(art.Data)
		return
	}
	art, loc, err := ws.ExportPage(r.Context(), i, format, s.sink)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": i, "filename": art.Filename(i), "location": loc})
}

func (s *Server) handleAnalyzePage(w http.ResponseWriter, r *http.Request) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	i, err := pageIndex(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := ws.AnalyzePage(r.Context(), i)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type selectionRequest struct {
	Action string `json:"action" validate:"required,oneof=toggle all none"`
	Index  *int   `json:"index" validate:"required_if=Action toggle"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req selectionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, &ValidationError{Message: "Invalid JSON body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, &ValidationError{Field: "action", Message: "action must be toggle, all or none; toggle needs an index"})
		return
	}
	switch req.Action {
	case "toggle":
		ws.Toggle(*req.Index)
	case "all":
		ws.SelectAll()
	case "none":
		ws.DeselectAll()
	}
	writeJSON(w, http.StatusOK, map[string][]int{"selected": ws.Selected()})
}

func (s *Server) handleBatchExport(w http.ResponseWriter, r *http.Request) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	format, err := formatParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rep, err := ws.BatchExport(r.Context(), format, s.sink)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleBatchAnalyze(w http.ResponseWriter, r *http.Request) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rep, err := ws.BatchAnalyze(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	ws, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, ok, err := ws.BatchStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
