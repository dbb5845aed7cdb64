package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/imagerender"
	"github.com/local/pdfslicer/internal/metrics"
)

// MaxKeywords is the number of keywords kept from a backend reply.
const MaxKeywords = 5

// Result is the summary and keywords for one page.
type Result struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// ConfigError means analysis is disabled; no request was made.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "analysis disabled: " + e.Reason
}

// AnalysisError is a failed or malformed backend call.
type AnalysisError struct {
	Status  int
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("analysis failed (status %d): %s", e.Status, msg)
	}
	return "analysis failed: " + msg
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsConfigError reports whether err means the feature is turned off.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Client talks to the backend's /api/analyze endpoint.
type Client struct {
	cfg  config.ClientConfig
	http *http.Client
}

// NewClient builds a client. A nil httpClient gets one with the configured timeout.
func NewClient(cfg config.ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.AnalyzeTimeout}
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// Enabled reports whether Analyze can make requests.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.BackendURL != ""
}

// UpsellURL is shown to users when analysis is disabled.
func (c *Client) UpsellURL() string { return c.cfg.UpsellURL }

type analyzeRequest struct {
	ImageData string `json:"imageData"`
}

type analyzeReply struct {
	Summary  *string  `json:"summary"`
	Keywords []string `json:"keywords"`
	Error    string   `json:"error"`
	Message  string   `json:"message"`
}

// Analyze sends a PNG raster to the backend.
func (c *Client) Analyze(ctx context.Context, png []byte) (Result, error) {
	return c.AnalyzeBase64(ctx, imagerender.EncodeToBase64(png))
}

// AnalyzeBase64 accepts a base64 payload with or without a data URI prefix.
func (c *Client) AnalyzeBase64(ctx context.Context, payload string) (Result, error) {
	if !c.cfg.Enabled {
		return Result{}, &ConfigError{Reason: "AI analysis is not enabled"}
	}
	if c.cfg.BackendURL == "" {
		return Result{}, &ConfigError{Reason: "backend URL is not configured"}
	}

	body, err := json.Marshal(analyzeRequest{ImageData: imagerender.StripDataURI(payload)})
	if err != nil {
		return Result{}, &AnalysisError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BackendURL+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return Result{}, &AnalysisError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProvider("backend", "", "error", time.Since(start))
		return Result{}, &AnalysisError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveProvider("backend", "", "error", time.Since(start))
		return Result{}, &AnalysisError{Status: resp.StatusCode, Err: err}
	}
	var reply analyzeReply
	decodeErr := json.Unmarshal(raw, &reply)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveProvider("backend", "", "error", time.Since(start))
		msg := reply.Message
		if msg == "" {
			msg = reply.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		log.Warn().Int("status", resp.StatusCode).Str("message", msg).Msg("analysis backend returned an error")
		return Result{}, &AnalysisError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		metrics.ObserveProvider("backend", "", "error", time.Since(start))
		return Result{}, &AnalysisError{Status: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if reply.Summary == nil {
		metrics.ObserveProvider("backend", "", "error", time.Since(start))
		return Result{}, &AnalysisError{Status: resp.StatusCode, Message: "response has no summary"}
	}

	metrics.ObserveProvider("backend", "", "ok", time.Since(start))
	kw := reply.Keywords
	if len(kw) > MaxKeywords {
		kw = kw[:MaxKeywords]
	}
	if kw == nil {
		kw = []string{}
	}
	return Result{Summary: *reply.Summary, Keywords: kw}, nil
}
