package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/config"
)

// Sink receives exported artifacts. Save returns where the artifact ended up.
type Sink interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// New builds the sink selected by EXPORT_SINK.
func New(ctx context.Context, cfg config.ExportConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "local":
		return NewLocalSink(cfg.Dir), nil
	case "s3":
		s, err := NewS3Sink(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Password:  cfg.Password,
			Versioned: cfg.S3Versioned,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown export sink %q", cfg.Sink)
	}
}

// LocalSink writes artifacts into a directory.
type LocalSink struct {
	Dir string
}

// NewLocalSink returns a sink writing into dir (./exports when empty).
func NewLocalSink(dir string) *LocalSink {
	if dir == "" {
		dir = "exports"
	}
	return &LocalSink{Dir: dir}
}

// Save writes data to Dir/name and returns the file path.
func (s *LocalSink) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// names may carry sub directories but never leave Dir
	p := filepath.Join(s.Dir, filepath.Clean("/"+name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	log.Debug().Str("path", p).Str("content_type", contentType).Int("size", len(data)).Msg("saved artifact locally")
	return p, nil
}
