package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level        string
	Pretty       bool
	File         string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ClientConfig is the caller side of AI analysis. When Enabled is false the
// product runs in its degraded mode: analysis is refused and the upsell is shown.
type ClientConfig struct {
	Enabled        bool
	BackendURL     string
	AnalyzeTimeout time.Duration
	UpsellURL      string
}

// ProviderConfig is the backend side of AI analysis (the vendor credential lives here only).
type ProviderConfig struct {
	Provider        string // "gemini"|"openai"|"anthropic"
	GeminiAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	RequestTimeout  time.Duration
}

// APIKey returns the credential of the selected provider.
func (p ProviderConfig) APIKey() string {
	switch p.Provider {
	case "openai":
		return p.OpenAIAPIKey
	case "anthropic":
		return p.AnthropicAPIKey
	default:
		return p.GeminiAPIKey
	}
}

// ServerConfig defines the HTTP backend.
type ServerConfig struct {
	Port         string
	MaxUploadMB  int
	MaxBodyMB    int
	AnalyzeRPS   float64
	AnalyzeBurst int
}

// ExportConfig defines where exported artifacts are saved.
type ExportConfig struct {
	Sink             string // "local"|"s3"
	Dir              string
	S3Bucket         string
	S3Prefix         string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3Versioned      bool
	Password         string
	BatchConcurrency int
	BatchReanalyze   bool
}

// StoreConfig defines where analysis results are kept.
type StoreConfig struct {
	RedisURL string
	TTL      time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Client   ClientConfig
	Provider ProviderConfig
	Server   ServerConfig
	Export   ExportConfig
	Store    StoreConfig
}

// Load reads .env.local and .env (when present) into the process environment
// and then builds the configuration from it. Existing variables win.
func Load() Config {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfslicer.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfslicer",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Client side: the AI flag and credential gate the feature as a whole.
	clientKey := strings.TrimSpace(getEnv("AI_CLIENT_KEY", ""))
	enabled := clientKey != "" && !strings.EqualFold(clientKey, "disabled")
	if v := os.Getenv("AI_ENABLED"); v != "" {
		enabled = enabled && parseBool(v)
	}
	cfg.Client = ClientConfig{
		Enabled:        enabled,
		BackendURL:     strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:3001"), "/"),
		AnalyzeTimeout: parseDuration(getEnv("ANALYZE_TIMEOUT", ""), 0),
		UpsellURL:      getEnv("UPSELL_URL", "https://pdfslicendice.sjdev.pl"),
	}

	// Provider defaults
	cfg.Provider = ProviderConfig{
		Provider:        strings.ToLower(getEnv("AI_PROVIDER", "gemini")),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		RequestTimeout:  parseDuration(getEnv("PROVIDER_TIMEOUT", "60s"), 60*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:         getEnv("PORT", "3001"),
		MaxUploadMB:  parseInt(getEnv("MAX_UPLOAD_MB", "50"), 50),
		MaxBodyMB:    parseInt(getEnv("MAX_BODY_MB", "50"), 50),
		AnalyzeRPS:   parseFloat(getEnv("ANALYZE_RPS", "2"), 2),
		AnalyzeBurst: parseInt(getEnv("ANALYZE_BURST", "5"), 5),
	}

	cfg.Export = ExportConfig{
		Sink:             strings.ToLower(getEnv("EXPORT_SINK", "local")),
		Dir:              getEnv("EXPORT_DIR", "exports"),
		S3Bucket:         getEnv("AWS_S3_BUCKET", ""),
		S3Prefix:         getEnv("S3_PREFIX", "exports"),
		S3Region:         getEnv("AWS_REGION", ""),
		S3AccessKey:      getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Versioned:      parseBool(getEnv("S3_VERSIONED", "0")),
		Password:         getEnv("EXPORT_PASSWORD", ""),
		BatchConcurrency: parseInt(getEnv("BATCH_CONCURRENCY", "1"), 1),
		BatchReanalyze:   parseBool(getEnv("BATCH_REANALYZE", "0")),
	}
	if cfg.Export.BatchConcurrency <= 0 {
		cfg.Export.BatchConcurrency = 1
	}

	cfg.Store = StoreConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		TTL:      parseDuration(getEnv("ANALYSIS_TTL", "24h"), 24*time.Hour),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
