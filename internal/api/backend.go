package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/ai"
	"github.com/local/pdfslicer/internal/imagerender"
	"github.com/local/pdfslicer/internal/metrics"
)

type analyzeRequest struct {
	ImageData string `json:"imageData" validate:"required"`
}

type analyzeResponse struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Backend service is running"})
}

func analyzeFailed(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": "Failed to analyze image", "message": msg})
}

// handleAnalyze forwards a page image to the configured AI provider.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	// An empty body decodes as {} and fails validation below.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("Request body too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid JSON body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Image data is required"))
		return
	}
	if s.provider == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("API key not configured"))
		return
	}

	b64 := imagerender.StripDataURI(req.ImageData)
	img, err := imagerender.DecodeFromBase64(b64)
	if err != nil || len(img) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid image data"))
		return
	}

	name, model := s.provider.Name(), s.provider.Model()
	ctx := r.Context()
	if s.guard.IsOpen(ctx, name, model) {
		analyzeFailed(w, http.StatusServiceUnavailable, "provider is cooling down after recent failures")
		return
	}
	release, ok := s.guard.Allow(name, model)
	if !ok {
		analyzeFailed(w, http.StatusTooManyRequests, "too many analyses in flight")
		return
	}
	defer release()

	start := time.Now()
	resp, err := s.provider.Do(ctx, ai.Request{
		Model:       model,
		Timeout:     s.providerCfg.RequestTimeout,
		ImageBase64: b64,
		ImageMIME:   s.detector.ImageMIME(img),
		Prompt:      ai.AnalysisPrompt,
	})
	var parsed ai.Analysis
	if err == nil {
		parsed, err = ai.ParseAnalysis(resp.Text)
	}
	s.guard.Report(ctx, name, model, err != nil && ai.IsTransient(err))
	if err != nil {
		metrics.ObserveProvider(name, model, "error", time.Since(start))
		log.Error().Err(err).Str("provider", name).Str("model", model).Msg("analysis failed")
		msg := err.Error()
		if ai.IsContentRefused(err) {
			msg = "The model declined to analyze this image"
		}
		analyzeFailed(w, http.StatusInternalServerError, msg)
		return
	}
	metrics.ObserveProvider(name, model, "ok", time.Since(start))
	log.Info().
		Str("provider", name).
		Str("model", model).
		Int("tokens_in", resp.TokensIn).
		Int("tokens_out", resp.TokensOut).
		Dur("took", time.Since(start)).
		Msg("image analyzed")
	writeJSON(w, http.StatusOK, analyzeResponse{Summary: parsed.Summary, Keywords: parsed.Keywords})
}
