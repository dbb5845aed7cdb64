package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesToRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, Init(Options{Service: "pdfslicer", Level: "debug", File: file, MaxSizeMB: 1}))
	defer Close()

	log.Info().Str("k", "v").Msg("hello")
	assert.Equal(t, zerolog.DebugLevel, Get().GetLevel())

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"hello"`)
	assert.Contains(t, string(b), `"service":"pdfslicer"`)
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Options{Level: "loud"}))
	defer Close()
	assert.Equal(t, zerolog.InfoLevel, Get().GetLevel())
}

func TestInitEmptyLevelDefaultsToInfo(t *testing.T) {
	file := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, Init(Options{Service: "pdfslicer", File: file}))
	defer Close()
	assert.Equal(t, zerolog.InfoLevel, Get().GetLevel())

	log.Info().Msg("visible")
	log.Debug().Msg("hidden")
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"visible"`)
	assert.NotContains(t, string(b), "hidden")
}

func TestComponentTagsLogger(t *testing.T) {
	file := filepath.Join(t.TempDir(), "c.log")
	require.NoError(t, Init(Options{Service: "pdfslicer", File: file}))
	defer Close()

	l := Component("splitter")
	l.Warn().Msg("x")

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"component":"splitter"`)
}
