package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONTACTSYNC_API_BASE_URL", "https://contacts.example.com/api")
	t.Setenv("CONTACTSYNC_API_MAX_RETRIES", "2")
	t.Setenv("CONTACTSYNC_CACHE_VALIDATION_TTL", "10s")
	t.Setenv("CONTACTSYNC_CACHE_POLICY", "lru")
	t.Setenv("CONTACTSYNC_SESSION_DSN", "sqlite:///tmp/session.db")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://contacts.example.com/api", cfg.API.BaseURL)
	require.Equal(t, 2, cfg.API.MaxRetries)
	require.Equal(t, 10*time.Second, cfg.Cache.ValidationTTL)
	require.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	require.Equal(t, "lru", cfg.Cache.Policy)
	require.Equal(t, "sqlite:///tmp/session.db", cfg.Session.DSN)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://10.0.0.5:8080/api
  timeout: 5s
cache:
  capacity: 10
watch:
  path: /data/contactos.xlsx
  min_interval: 500ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:8080/api", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.Equal(t, 10, cfg.Cache.Capacity)
	require.Equal(t, "/data/contactos.xlsx", cfg.Watch.Path)
	require.Equal(t, 500*time.Millisecond, cfg.Watch.MinInterval)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONTACTSYNC_CACHE_POLICY", "random")

	_, err := Load("")
	require.Error(t, err)
}
