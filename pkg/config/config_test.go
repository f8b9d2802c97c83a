package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.ListenAddr)
		assert.Equal(t, 1000, cfg.Buffer.MaxSize)
		assert.Equal(t, time.Hour, cfg.BufferTTL())
		assert.Equal(t, time.Minute, cfg.BufferCleanupInterval())
		assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval())
		assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL())
		assert.Equal(t, 256, cfg.Session.SubscriberQueueCap)
		assert.True(t, cfg.FilterInternalByDefault())
		assert.Empty(t, cfg.Database.DSN, "persistence is off by default")
	})

	t.Run("empty path skips the file entirely", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 1000, cfg.Buffer.MaxSize)
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("file values override defaults, rest stays", func(t *testing.T) {
		path := writeConfig(t, `
buffer:
  max_size: 50
  ttl: 1000
sse:
  heartbeat_interval: 0
session:
  subscriber_queue_cap: 8
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 50, cfg.Buffer.MaxSize)
		assert.Equal(t, time.Second, cfg.BufferTTL())
		assert.Zero(t, cfg.HeartbeatInterval(), "explicit zero disables keepalives")
		assert.Equal(t, 8, cfg.Session.SubscriberQueueCap)
		assert.Equal(t, time.Minute, cfg.BufferCleanupInterval(), "untouched key keeps its default")
	})

	t.Run("internal filtering can be opted out", func(t *testing.T) {
		path := writeConfig(t, "router:\n  default_filter_internal: false\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.False(t, cfg.FilterInternalByDefault())
	})

	t.Run("template placeholders expand from the environment", func(t *testing.T) {
		t.Setenv("TEST_RELAY_DSN", "postgres://relay@localhost/relay")
		path := writeConfig(t, "database:\n  dsn: \"{{.TEST_RELAY_DSN}}\"\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://relay@localhost/relay", cfg.Database.DSN)
	})

	t.Run("malformed YAML is rejected", func(t *testing.T) {
		path := writeConfig(t, "buffer: [not a map")
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("env vars win over file values", func(t *testing.T) {
		t.Setenv("RELAY_LISTEN_ADDR", ":9999")
		t.Setenv("DATABASE_URL", "postgres://env-wins")
		path := writeConfig(t, "server:\n  listen_addr: \":7777\"\ndatabase:\n  dsn: \"file-loses\"\n")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.Server.ListenAddr)
		assert.Equal(t, "postgres://env-wins", cfg.Database.DSN)
	})
}

func TestValidation(t *testing.T) {
	t.Run("rejects non-positive buffer size", func(t *testing.T) {
		path := writeConfig(t, "buffer:\n  max_size: -1\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "buffer.max_size")
	})

	t.Run("rejects negative heartbeat", func(t *testing.T) {
		path := writeConfig(t, "sse:\n  heartbeat_interval: -5\n")
		_, err := Load(path)
		require.Error(t, err)
	})
}
