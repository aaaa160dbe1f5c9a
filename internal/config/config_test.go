package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 300*time.Millisecond, cfg.DebounceInterval)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, ":8790", cfg.Relay.Addr)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
debounce_interval_ms: 150
commit_timeout_ms: 2000
log_level: debug
store:
  driver: sqlite
  path: /tmp/docs.db
relay:
  addr: 127.0.0.1:9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, cfg.DebounceInterval)
	assert.Equal(t, 2*time.Second, cfg.CommitTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/docs.db", cfg.Store.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.Relay.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "debounce: 100\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debounce")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "debounce_interval_ms: 150\nstore:\n  driver: sqlite\n")
	t.Setenv("DOCSYNC_DEBOUNCE_MS", "50")
	t.Setenv("DOCSYNC_STORE_DRIVER", "redis")
	t.Setenv("DOCSYNC_STORE_URL", "redis://localhost:6379/0")
	t.Setenv("DOCSYNC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.DebounceInterval)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.URL)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestLoad_EnvNotInteger(t *testing.T) {
	t.Setenv("DOCSYNC_DEBOUNCE_MS", "fast")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCSYNC_DEBOUNCE_MS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero debounce", func(c *Config) { c.DebounceInterval = 0 }, true},
		{"debounce over a minute", func(c *Config) { c.DebounceInterval = 2 * time.Minute }, true},
		{"negative timeout", func(c *Config) { c.CommitTimeout = -time.Second }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, true},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.Path = "" }, true},
		{"redis url", func(c *Config) { c.Store.Driver = DriverRedis; c.Store.URL = "redis://h:6379" }, false},
		{"redis wrong scheme", func(c *Config) { c.Store.Driver = DriverRedis; c.Store.URL = "http://h" }, true},
		{"postgres url", func(c *Config) { c.Store.Driver = DriverPostgres; c.Store.URL = "postgres://u@h/db" }, false},
		{"postgres missing url", func(c *Config) { c.Store.Driver = DriverPostgres }, true},
		{"relay url", func(c *Config) { c.Store.Driver = DriverRelay; c.Store.URL = "ws://localhost:8790/ws" }, false},
		{"relay wrong scheme", func(c *Config) { c.Store.Driver = DriverRelay; c.Store.URL = "redis://h" }, true},
		{"empty relay addr", func(c *Config) { c.Relay.Addr = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlogLevel_FallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
