package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/local/pdfslicer/internal/ai"
	"github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/filetype"
	"github.com/local/pdfslicer/internal/limiter"
	"github.com/local/pdfslicer/internal/metrics"
	"github.com/local/pdfslicer/internal/statuscheck"
	"github.com/local/pdfslicer/internal/storage"
	"github.com/local/pdfslicer/internal/workspace"
)

// StatusReporter is implemented by *statuscheck.Checker.
type StatusReporter interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Options wires the server. Provider may be nil when no key is configured.
type Options struct {
	Config    config.Config
	Provider  ai.Client
	Guard     *limiter.Guard
	Registry  *workspace.Registry
	Sink      storage.Sink
	Status    StatusReporter
	AIEnabled bool
}

// Server serves the analysis backend and the document workspace API.
type Server struct {
	provider    ai.Client
	providerCfg config.ProviderConfig
	guard       *limiter.Guard
	registry    *workspace.Registry
	sink        storage.Sink
	status      StatusReporter
	validate    *validator.Validate
	detector    *filetype.Detector
	limiter     *ipLimiter
	maxBody     int64
	maxUpload   int64
	aiEnabled   bool
	upsellURL   string
}

func New(opts Options) *Server {
	cfg := opts.Config
	g := opts.Guard
	if g == nil {
		g = limiter.New(limiter.Options{})
	}
	reg := opts.Registry
	if reg == nil {
		reg = workspace.NewRegistry(workspace.Deps{})
	}
	sink := opts.Sink
	if sink == nil {
		sink = storage.NewLocalSink(cfg.Export.Dir)
	}
	return &Server{
		provider:    opts.Provider,
		providerCfg: cfg.Provider,
		guard:       g,
		registry:    reg,
		sink:        sink,
		status:      opts.Status,
		validate:    validator.New(),
		detector:    filetype.New(),
		limiter:     newIPLimiter(cfg.Server.AnalyzeRPS, cfg.Server.AnalyzeBurst),
		maxBody:     megabytes(cfg.Server.MaxBodyMB),
		maxUpload:   megabytes(cfg.Server.MaxUploadMB),
		aiEnabled:   opts.AIEnabled,
		upsellURL:   cfg.Client.UpsellURL,
	}
}

func megabytes(n int) int64 {
	if n <= 0 {
		n = 50
	}
	return int64(n) << 20
}

// RegisterRoutes attaches every endpoint to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/analyze", s.limiter.middleware(s.handleAnalyze))
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/documents", s.handleCreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /api/documents/{id}/pages/{index}/preview", s.handlePreview)
	mux.HandleFunc("GET /api/documents/{id}/pages/{index}/export", s.handleExport)
	mux.HandleFunc("POST /api/documents/{id}/pages/{index}/export", s.handleSaveExport)
	mux.HandleFunc("POST /api/documents/{id}/pages/{index}/analyze", s.handleAnalyzePage)
	mux.HandleFunc("POST /api/documents/{id}/selection", s.handleSelection)
	mux.HandleFunc("POST /api/documents/{id}/batch/export", s.handleBatchExport)
	mux.HandleFunc("POST /api/documents/{id}/batch/analyze", s.handleBatchAnalyze)
	mux.HandleFunc("GET /api/documents/{id}/batch", s.handleBatchStatus)
}

// Handler returns the routes wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return requestLog(cors(mux))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	sum := s.status.Summary(r.Context())
	code := http.StatusOK
	if !sum.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}
