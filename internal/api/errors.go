package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/analysis"
	"github.com/local/pdfslicer/internal/document"
	"github.com/local/pdfslicer/internal/exporter"
	"github.com/local/pdfslicer/internal/imagerender"
	"github.com/local/pdfslicer/internal/workspace"
)

// ValidationError is a rejected request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var errNotFound = errors.New("document not found")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]string { return map[string]string{"error": msg} }

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		le *document.LoadError
		ve *ValidationError
		ce *analysis.ConfigError
		ae *analysis.AnalysisError
		re *imagerender.RenderError
		ee *exporter.EncodeError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody(ve.Message))
	case errors.As(err, &le):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "Failed to load PDF", "message": le.Error()})
	case errors.Is(err, errNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("Document not found"))
	case errors.Is(err, workspace.ErrPageOutOfRange):
		writeJSON(w, http.StatusNotFound, errorBody("Page not found"))
	case errors.Is(err, workspace.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody("Another operation is in progress"))
	case errors.As(err, &ce):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":     "AI analysis is not available",
			"message":   ce.Error(),
			"upsellUrl": s.upsellURL,
		})
	case errors.As(err, &ae):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to analyze image", "message": ae.Error()})
	case errors.As(err, &re):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to render page", "message": re.Error()})
	case errors.As(err, &ee):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to export page", "message": ee.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error", "message": err.Error()})
	}
}
