package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "an explicit path must exist")
	assert.Nil(t, cfg)

	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Retention.MaxAgeDays)
	assert.Equal(t, 500, cfg.Retention.MaxItems)
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, 8000, cfg.Archive.EmbedMaxChars)
	assert.Equal(t, 100*time.Millisecond, Duration(cfg.HN.RequestInterval))
	assert.Equal(t, "@every 6h", cfg.Retention.Schedule)
}

func TestFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "briefing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /tmp/briefing-test
embedder:
  provider: hash
retention:
  max_items: 50
hn:
  topics: [go, rust]
`), 0o644))

	t.Setenv("BRIEFING_RETENTION_MAX_AGE_DAYS", "7")
	t.Setenv("BRIEFING_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/briefing-test", cfg.DataDir)
	assert.Equal(t, "hash", cfg.Embedder.Provider)
	assert.Equal(t, 50, cfg.Retention.MaxItems)
	assert.Equal(t, 7, cfg.Retention.MaxAgeDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"go", "rust"}, cfg.HN.Topics)
	assert.Equal(t, 8000, cfg.Archive.EmbedMaxChars, "unset keys keep defaults")

	ac := cfg.ArchiveConfig()
	assert.Equal(t, filepath.Join("/tmp/briefing-test", "archive"), ac.Dir)
	assert.Equal(t, 50, ac.MaxItems)
	assert.Equal(t, 7, ac.MaxAgeDays)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Embedder.Provider = "openai"
	cfg.Retention.MaxItems = 0
	cfg.HN.Timeout = "soon"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder.provider")
	assert.Contains(t, err.Error(), "retention.max_items")
	assert.Contains(t, err.Error(), "hn.timeout")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Retention, cfg.Retention)
}
