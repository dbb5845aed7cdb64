package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("AI_CLIENT_KEY", "")
	t.Setenv("BACKEND_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("BATCH_CONCURRENCY", "")
	t.Setenv("BATCH_REANALYZE", "")

	cfg := FromEnv()
	assert.False(t, cfg.Client.Enabled)
	assert.Equal(t, "http://localhost:3001", cfg.Client.BackendURL)
	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Provider.Provider)
	assert.Equal(t, 1, cfg.Export.BatchConcurrency)
	assert.False(t, cfg.Export.BatchReanalyze)
	assert.Equal(t, 24*time.Hour, cfg.Store.TTL)
}

func TestClientGate(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		flag    string
		enabled bool
	}{
		{"no key", "", "", false},
		{"disabled literal", "disabled", "", false},
		{"disabled literal upper", "DISABLED", "true", false},
		{"key only", "abc", "", true},
		{"key with flag off", "abc", "false", false},
		{"key with flag on", "abc", "1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AI_CLIENT_KEY", tc.key)
			t.Setenv("AI_ENABLED", tc.flag)
			assert.Equal(t, tc.enabled, FromEnv().Client.Enabled)
		})
	}
}

func TestProviderAPIKey(t *testing.T) {
	p := ProviderConfig{Provider: "openai", OpenAIAPIKey: "o", GeminiAPIKey: "g", AnthropicAPIKey: "a"}
	assert.Equal(t, "o", p.APIKey())
	p.Provider = "anthropic"
	assert.Equal(t, "a", p.APIKey())
	p.Provider = "gemini"
	assert.Equal(t, "g", p.APIKey())
}

func TestBackendURLTrailingSlash(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://api.example.com/")
	assert.Equal(t, "http://api.example.com", FromEnv().Client.BackendURL)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 7, parseInt("x", 7))
	assert.Equal(t, 3, parseInt("3", 7))
	assert.Equal(t, 1.5, parseFloat("1.5", 0))
	assert.True(t, parseBool(" Yes "))
	assert.False(t, parseBool("0"))
	assert.Equal(t, time.Second, parseDuration("bogus", time.Second))
}
