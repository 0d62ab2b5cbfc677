package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radiology-ai/internal/agent"
)

// Run from a temp dir so a developer's .env does not leak into the tests.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Pipeline.Parallel)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.PassTimeout)
	assert.InDelta(t, 0.95, cfg.Pipeline.RadiologistThreshold, 1e-9)
	assert.Equal(t, "file://migrations", cfg.Database.MigrationsPath)
	assert.Nil(t, cfg.Orchestrator().FanOut)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
pipeline:
  parallel: false
  pass_timeout: 5s
  fan_out: [factual, differential]
telegram:
  chat_id: 12
`), 0o600))

	t.Setenv("PASS_TIMEOUT", "2s")
	t.Setenv("REPORT_CHAT_ID", "99")
	t.Setenv("PDF_FONT_PATHS", "/a.ttf: /b.ttf")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Pipeline.Parallel)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PassTimeout)
	assert.Equal(t, int64(99), cfg.Telegram.ChatID)
	assert.Equal(t, []string{"/a.ttf", "/b.ttf"}, cfg.Report.FontPaths)

	oc := cfg.Orchestrator()
	assert.Equal(t, []agent.Name{agent.Factual, agent.Differential}, oc.FanOut)
	assert.False(t, oc.Parallel)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INFERENCE_URL=http://model:8000/analyze\n"), 0o600))
	t.Setenv("INFERENCE_URL", "")
	require.NoError(t, os.Unsetenv("INFERENCE_URL"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://model:8000/analyze", cfg.Inference.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad bool", "PARALLEL_EXECUTION", "sometimes"},
		{"bad duration", "PASS_TIMEOUT", "soon"},
		{"zero timeout", "PASS_TIMEOUT", "0s"},
		{"threshold above one", "RADIOLOGIST_THRESHOLD", "1.5"},
		{"unknown pass", "FAN_OUT", "factual,black_hat"},
		{"bad level", "LOG_LEVEL", "loud"},
		{"bad chat id", "REPORT_CHAT_ID", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}
