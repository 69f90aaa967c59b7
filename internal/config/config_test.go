package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every env var that Load() reads.
var allConfigKeys = []string{
	"TORNPANEL_LISTEN_ADDR",
	"TORNPANEL_DB_PATH",
	"TORNPANEL_KMS_MASTER",
	"JWT_SECRET",
	"TORNPANEL_COMMENT",
	"TORNPANEL_BASE_URL",
	"TORNPANEL_KEY_PLACEMENT",
	"TORNPANEL_RATE_LIMIT_PER_MIN",
	"TORNPANEL_HTTP_TIMEOUT",
	"TORNPANEL_HTTP_CACHE",
	"TORNPANEL_REDIS_ADDR",
	"TORNPANEL_POSTGRES_DSN",
	"TORNPANEL_POLL_INTERVAL",
	"TORNPANEL_WORKERS",
	"TORNPANEL_DEBUG",
	"TORNPANEL_ALLOW_DEV_KEY",
	"TORNPANEL_SESSION_KEYS",
	"TORNPANEL_LOG_LEVEL",
	"TORNPANEL_SNAPSHOT_RETENTION_DAYS",
}

// isolateConfigEnv saves and unsets all config env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("TORNPANEL_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("TORNPANEL_DB_PATH", "/tmp/test.db")
	t.Setenv("TORNPANEL_KMS_MASTER", "master")
	t.Setenv("TORNPANEL_KEY_PLACEMENT", "Header")
	t.Setenv("TORNPANEL_RATE_LIMIT_PER_MIN", "30")
	t.Setenv("TORNPANEL_HTTP_TIMEOUT", "3s")
	t.Setenv("TORNPANEL_POLL_INTERVAL", "30m")
	t.Setenv("TORNPANEL_WORKERS", "2")
	t.Setenv("TORNPANEL_SNAPSHOT_RETENTION_DAYS", "10")
	t.Setenv("TORNPANEL_LOG_LEVEL", "debug")
	t.Setenv("TORNPANEL_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "master", cfg.Passphrase)
	assert.Equal(t, PlacementHeader, cfg.KeyPlacement)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Minute, cfg.PollInterval)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 10*24*time.Hour, cfg.SnapshotRetention)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "tornpanel.db", cfg.DBPath)
	assert.Equal(t, "SFT", cfg.Comment)
	assert.Equal(t, PlacementQuery, cfg.KeyPlacement)
	assert.Equal(t, 65, cfg.RateLimitPerMin)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 6*time.Hour, cfg.PollInterval)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 45*24*time.Hour, cfg.SnapshotRetention)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.HTTPCache)
	assert.False(t, cfg.SessionKeyFirst())
	assert.True(t, cfg.SessionKeys, "session keys are honored outside debug")
	assert.Empty(t, cfg.Passphrase)
}

func TestLoad_PassphraseFallsBackToJWTSecret(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("JWT_SECRET", "jwt")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "jwt", cfg.Passphrase)

	t.Setenv("TORNPANEL_KMS_MASTER", "kms")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "kms", cfg.Passphrase)
}

func TestLoad_SessionKeyFirst(t *testing.T) {
	for _, key := range []string{"TORNPANEL_DEBUG", "TORNPANEL_ALLOW_DEV_KEY"} {
		t.Run(key, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(key, "true")

			cfg, err := Load()

			require.NoError(t, err)
			assert.True(t, cfg.SessionKeyFirst())
		})
	}
}

func TestLoad_SessionKeysCanBeDisabled(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("TORNPANEL_SESSION_KEYS", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.SessionKeys)
	assert.False(t, cfg.AcceptSessionKey())

	t.Setenv("TORNPANEL_ALLOW_DEV_KEY", "1")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.AcceptSessionKey(), "a dev key tried first is always honored")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad duration", map[string]string{"TORNPANEL_POLL_INTERVAL": "soon"}, "TORNPANEL_POLL_INTERVAL"},
		{"bad integer", map[string]string{"TORNPANEL_WORKERS": "many"}, "TORNPANEL_WORKERS"},
		{"zero workers", map[string]string{"TORNPANEL_WORKERS": "0"}, "TORNPANEL_WORKERS"},
		{"bad bool", map[string]string{"TORNPANEL_HTTP_CACHE": "maybe"}, "TORNPANEL_HTTP_CACHE"},
		{"bad session keys", map[string]string{"TORNPANEL_SESSION_KEYS": "sometimes"}, "TORNPANEL_SESSION_KEYS"},
		{"bad placement", map[string]string{"TORNPANEL_KEY_PLACEMENT": "cookie"}, "TORNPANEL_KEY_PLACEMENT"},
		{"bad level", map[string]string{"TORNPANEL_LOG_LEVEL": "loud"}, "TORNPANEL_LOG_LEVEL"},
		{"cache with header key", map[string]string{"TORNPANEL_HTTP_CACHE": "1", "TORNPANEL_KEY_PLACEMENT": "header"}, "TORNPANEL_HTTP_CACHE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
