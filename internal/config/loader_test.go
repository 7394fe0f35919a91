package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	t.Run("should return defaults when file is missing", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))

		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 600, cfg.Session.TTLSeconds)
	})

	t.Run("should load values from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		content := `{
			"server": {"host": "127.0.0.1", "port": 9090, "shared_secret": "hunter2"},
			"session": {"ttl_seconds": 120, "sweep_interval_seconds": 15}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "hunter2", cfg.Server.SharedSecret)
		assert.Equal(t, 120, cfg.Session.TTLSeconds)
		assert.Equal(t, 15, cfg.Session.SweepIntervalSeconds)
	})

	t.Run("should read SLIDE_RELAY env vars without a config file", func(t *testing.T) {
		t.Setenv("SLIDE_RELAY_SERVER_SHARED_SECRET", "env-secret")
		t.Setenv("SLIDE_RELAY_SERVER_PORT", "9090")
		t.Setenv("SLIDE_RELAY_SESSION_TTL_SECONDS", "120")
		t.Setenv("SLIDE_RELAY_LOGGING_LEVEL", "debug")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, "env-secret", cfg.Server.SharedSecret)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 120, cfg.Session.TTLSeconds)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// Untouched keys keep their defaults.
		assert.Equal(t, 60, cfg.Session.SweepIntervalSeconds)
	})

	t.Run("should prefer env var over file value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		content := `{"server": {"shared_secret": "file-secret"}}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		t.Setenv("SLIDE_RELAY_SERVER_SHARED_SECRET", "env-secret")

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "env-secret", cfg.Server.SharedSecret)
	})

	t.Run("should fall back to AGENT_SHARED_SECRET", func(t *testing.T) {
		t.Setenv("AGENT_SHARED_SECRET", "legacy-secret")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, "legacy-secret", cfg.Server.SharedSecret)
	})

	t.Run("should reject malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}

func TestLoader_Save(t *testing.T) {
	t.Run("should round-trip config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "config.json")

		cfg := DefaultConfig()
		cfg.Server.Port = 9191
		cfg.Session.TTLSeconds = 300

		loader := NewLoader(path)
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 9191, loaded.Server.Port)
		assert.Equal(t, 300, loaded.Session.TTLSeconds)
	})
}
