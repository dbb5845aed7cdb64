package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/ai"
	"github.com/local/pdfslicer/internal/analysis"
	"github.com/local/pdfslicer/internal/api"
	cfgpkg "github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/limiter"
	logpkg "github.com/local/pdfslicer/internal/logger"
	"github.com/local/pdfslicer/internal/metrics"
	"github.com/local/pdfslicer/internal/statuscheck"
	"github.com/local/pdfslicer/internal/storage"
	"github.com/local/pdfslicer/internal/store"
	"github.com/local/pdfslicer/internal/workspace"
)

func main() {
	cfg := cfgpkg.Load()

	// Init logging
	_ = logpkg.Init(logpkg.FromConfig("pdfslicer-backend", cfg))
	defer logpkg.Close()

	metrics.Init()
	ctx := context.Background()

	// AI provider (optional: /api/analyze answers 500 without a key)
	provider, err := ai.NewClient(ctx, cfg.Provider)
	if err != nil {
		if !errors.Is(err, ai.ErrNotConfigured) {
			log.Fatal().Err(err).Msg("failed to init AI provider")
		}
		log.Warn().Str("provider", cfg.Provider.Provider).Msg("AI provider API key not configured")
	}

	// Redis (optional)
	var rdb *redis.Client
	analyses := store.AnalysisStore(store.NewMemoryStore())
	status := store.StatusStore(store.NewMemoryStatus())
	if cfg.Store.RedisURL != "" {
		rdb, err = store.Connect(cfg.Store.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		analyses = store.NewRedisAnalysisStore(rdb, cfg.Store.TTL)
		status = store.NewRedisStatus(rdb, cfg.Store.TTL)
	}

	// Export sink
	sink, err := storage.New(ctx, cfg.Export)
	if err != nil {
		log.Fatal().Err(err).Str("sink", cfg.Export.Sink).Msg("failed to init export sink")
	}

	checkOpts := statuscheck.Options{Redis: statuscheck.FromRedis(rdb), Provider: cfg.Provider}
	if s3sink, ok := sink.(*storage.S3Sink); ok {
		checkOpts.S3 = s3sink.Client()
		checkOpts.S3Bucket = s3sink.Bucket()
	}

	// Workspaces analyze through the backend, never with the provider key directly.
	client := analysis.NewClient(cfg.Client, nil)
	if !client.Enabled() {
		log.Info().Str("upsell", client.UpsellURL()).Msg("AI analysis disabled")
	}
	registry := workspace.NewRegistry(workspace.Deps{
		Analyzer: analysis.NewPageAnalyzer(client),
		Analyses: analyses,
		Status:   status,
		Batch:    workspace.BatchOptions{
			Concurrency: cfg.Export.BatchConcurrency,
			Reanalyze:   cfg.Export.BatchReanalyze,
		},
	})

	server := api.New(api.Options{
		Config:    cfg,
		Provider:  provider,
		Guard:     limiter.New(limiter.Options{Redis: rdb}),
		Registry:  registry,
		Sink:      sink,
		Status:    statuscheck.New(checkOpts),
		AIEnabled: client.Enabled(),
	})

	port := cfg.Server.Port
	srv := &http.Server{Addr: ":" + port, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
