package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONAtConfiguredLevel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	log, err := logger.New(logger.Config{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)

	log.Info("hidden")
	log.With(logger.SourceID("source-1")).Warn("visible", logger.Stage("analyze"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"visible"`)
	assert.Contains(t, out, `"source_id":"source-1"`)
	assert.Contains(t, out, `"stage":"analyze"`)
}

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	cfg := logger.Config{}
	cfg.SetDefaults()

	assert.Equal(t, logger.DefaultLevel, cfg.Level)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestNewNop(t *testing.T) {
	t.Parallel()

	log := logger.NewNop()
	log.Error("ignored", logger.String("k", "v"))
	assert.Same(t, log, log.With(logger.Int("n", 1)))
	assert.NoError(t, log.Sync())
}
