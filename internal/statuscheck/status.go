package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	redis "github.com/redis/go-redis/v9"

	"github.com/local/pdfslicer/internal/config"
	"github.com/local/pdfslicer/internal/imagerender"
	"github.com/local/pdfslicer/internal/pdftest"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger struct{ c *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// FromRedis adapts a go-redis client. A nil client yields a nil pinger.
func FromRedis(c *redis.Client) RedisPinger {
	if c == nil {
		return nil
	}
	return redisPinger{c: c}
}

// Checker aggregates health checks for the dependencies of the backend.
type Checker struct {
	redis      RedisPinger
	s3         *s3.Client
	s3Bucket   string
	httpClient *http.Client
	provider   config.ProviderConfig
	probe      bool
	baseURLs   map[string]string
	renderer   imagerender.Renderer
}

// Options configures the Checker.
type Options struct {
	Redis      RedisPinger
	S3         *s3.Client
	S3Bucket   string
	HTTPClient *http.Client
	Provider   config.ProviderConfig
	// ProbeProvider calls the provider's model listing endpoint instead of
	// only checking that a key is present.
	ProbeProvider bool
	// BaseURLs overrides provider endpoints by provider name.
	BaseURLs map[string]string
	Renderer imagerender.Renderer
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis Status `json:"redis"`
	S3    Status `json:"s3"`
	AI    Status `json:"ai"`
	MuPDF Status `json:"mupdf"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	r := opts.Renderer
	if r == nil {
		r = imagerender.Fitz{Purpose: "status"}
	}
	base := map[string]string{
		"openai":    "https://api.openai.com/v1",
		"anthropic": "https://api.anthropic.com/v1",
		"gemini":    "https://generativelanguage.googleapis.com/v1beta",
	}
	for k, v := range opts.BaseURLs {
		base[k] = strings.TrimRight(v, "/")
	}
	return &Checker{
		redis:      opts.Redis,
		s3:         opts.S3,
		s3Bucket:   opts.S3Bucket,
		httpClient: client,
		provider:   opts.Provider,
		probe:      opts.ProbeProvider,
		baseURLs:   base,
		renderer:   r,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis: c.checkRedis(ctx),
		S3:    c.checkS3(ctx),
		AI:    c.checkProvider(ctx),
		MuPDF: c.checkMuPDF(),
	}
}

// Ready is true when every configured dependency answers.
func (s Summary) Ready() bool {
	return s.Redis.OK && s.S3.OK && s.MuPDF.OK
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Not configured (memory store)"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: true, Message: "Not configured (local sink)"}
	}
	if c.s3Bucket == "" {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket})
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkProvider(ctx context.Context) Status {
	name := c.provider.Provider
	if name == "" {
		name = "gemini"
	}
	key := strings.TrimSpace(c.provider.APIKey())
	if key == "" {
		return Status{OK: false, Message: name + ": API key missing"}
	}
	if !c.probe {
		return Status{OK: true, Message: name + ": API key configured"}
	}

	var req *http.Request
	switch name {
	case "openai":
		req, _ = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURLs["openai"]+"/models?limit=1", nil)
		req.Header.Set("Authorization", "Bearer "+key)
	case "anthropic":
		req, _ = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURLs["anthropic"]+"/models", nil)
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	default:
		req, _ = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURLs["gemini"]+"/models?pageSize=1", nil)
		req.Header.Set("x-goog-api-key", key)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: name + ": " + trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Status{OK: false, Message: fmt.Sprintf("%s: HTTP %d", name, resp.StatusCode)}
	}
	return Status{OK: true, Message: name + ": Available"}
}

var (
	probeOnce sync.Once
	probePDF  []byte
	probeErr  error
)

// checkMuPDF renders a generated one-page document.
func (c *Checker) checkMuPDF() Status {
	probeOnce.Do(func() {
		probePDF, probeErr = pdftest.Generate(1, pdftest.Options{})
	})
	if probeErr != nil {
		return Status{OK: false, Message: trimError(probeErr)}
	}
	if _, err := c.renderer.RenderPNG(probePDF, 0, imagerender.PreviewScale); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
