package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing default file yields defaults", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("XDG_DATA_HOME", "/data")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Concurrency)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, 20, cfg.HistoryLimit)
	})

	t.Run("file values override defaults field by field", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"concurrency: 8\nlog_level: debug\n",
		), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Concurrency)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "text", cfg.LogFormat, "unset fields keep their defaults")
		assert.Equal(t, 20, cfg.HistoryLimit)
	})

	t.Run("default history path follows XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("XDG_DATA_HOME", "/data")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/data", "ydag", "history.db"), cfg.HistoryPath)
	})

	t.Run("an explicit missing path is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.ErrorContains(t, err, "open config")
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("concurrency: [Nah"), 0600))

		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorContains(t, err, "parse config")
	})

	t.Run("rejects concurrency below one", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("concurrency: 0"), 0600))

		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorContains(t, err, "concurrency")
	})

	t.Run("rejects history_limit below one", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("history_limit: -1"), 0600))

		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorContains(t, err, "history_limit")
	})
}
