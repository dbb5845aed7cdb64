package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfslicer/internal/storage"
)

// FetchOptions tunes Fetch.
type FetchOptions struct {
	// MaxBytes <= 0 means no limit.
	MaxBytes int64
	// S3 reads s3:// refs; nil loads the AWS default credential chain.
	S3 *s3.Client
	// Password opens objects an encrypted S3 sink wrote.
	Password string
}

// Fetch reads the source document referenced by ref into memory.
// Supports:
// - file://path or absolute/relative filesystem paths
// - http(s):// URLs
// - s3://bucket/key, opening the GCM envelope when present
func Fetch(ctx context.Context, ref string, opts FetchOptions) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return fetchS3(ctx, ref, opts)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return fetchHTTP(ctx, ref, opts.MaxBytes)
	default:
		path := strings.TrimPrefix(ref, "file://")
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readLimited(f, opts.MaxBytes)
	}
}

// PageCount returns the number of pages pdfcpu finds in an in-memory PDF.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), nil)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

func fetchHTTP(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return readLimited(resp.Body, maxBytes)
}

func fetchS3(ctx context.Context, s3url string, opts FetchOptions) ([]byte, error) {
	// s3://bucket/key
	path := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return nil, fmt.Errorf("invalid s3 url: %s", s3url)
	}
	bucket := path[:slash]
	key := path[slash+1:]

	cli := opts.S3
	if cli == nil {
		cfg, err := awscfg.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		cli = s3.NewFromConfig(cfg)
	}

	sink := storage.NewS3SinkFromClient(cli, storage.S3Options{Bucket: bucket, Password: opts.Password})
	b, meta, err := sink.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	if opts.MaxBytes > 0 && int64(len(b)) > opts.MaxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", opts.MaxBytes)
	}
	log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Bool("encrypted", meta.Encrypted).
		Int("size", len(b)).
		Msg("fetched s3 pdf")
	return b, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxBytes)
	}
	return b, nil
}
