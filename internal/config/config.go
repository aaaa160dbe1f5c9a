// Package config loads docsync settings from an optional YAML file and the
// environment, and validates them against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverRelay    = "relay"
)

// Config holds all docsync settings.
type Config struct {
	// DebounceInterval is the quiet period before a local edit is committed.
	DebounceInterval time.Duration

	// CommitTimeout bounds one store round trip.
	CommitTimeout time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	Store StoreConfig
	Relay RelayConfig
}

// StoreConfig selects and locates the document store.
type StoreConfig struct {
	// Driver is one of memory, sqlite, redis, postgres, relay.
	Driver string

	// Path is the SQLite database file.
	Path string

	// URL locates a redis://, postgres:// or ws:// store.
	URL string
}

// RelayConfig configures `docsync serve`.
type RelayConfig struct {
	// Addr is the listen address.
	Addr string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DebounceInterval: 300 * time.Millisecond,
		CommitTimeout:    5 * time.Second,
		LogLevel:         "info",
		Store: StoreConfig{
			Driver: DriverMemory,
			Path:   "docsync.db",
		},
		Relay: RelayConfig{
			Addr: ":8790",
		},
	}
}

// fileConfig is the YAML layout. Zero fields keep the current value.
type fileConfig struct {
	DebounceIntervalMS int    `yaml:"debounce_interval_ms"`
	CommitTimeoutMS    int    `yaml:"commit_timeout_ms"`
	LogLevel           string `yaml:"log_level"`
	Store              struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		URL    string `yaml:"url"`
	} `yaml:"store"`
	Relay struct {
		Addr string `yaml:"addr"`
	} `yaml:"relay"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then DOCSYNC_* environment variables. The result is
// validated before it is returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.mergeYAML(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.mergeEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(data []byte) error {
	var f fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		// An empty file decodes to EOF; keep defaults.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if f.DebounceIntervalMS != 0 {
		c.DebounceInterval = time.Duration(f.DebounceIntervalMS) * time.Millisecond
	}
	if f.CommitTimeoutMS != 0 {
		c.CommitTimeout = time.Duration(f.CommitTimeoutMS) * time.Millisecond
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.Store.Driver != "" {
		c.Store.Driver = f.Store.Driver
	}
	if f.Store.Path != "" {
		c.Store.Path = f.Store.Path
	}
	if f.Store.URL != "" {
		c.Store.URL = f.Store.URL
	}
	if f.Relay.Addr != "" {
		c.Relay.Addr = f.Relay.Addr
	}
	return nil
}

// mergeEnv applies DOCSYNC_* overrides.
func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	getenv := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	getenvMS := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: not an integer: %q", key, v)
		}
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}

	if err := getenvMS("DOCSYNC_DEBOUNCE_MS", &c.DebounceInterval); err != nil {
		return err
	}
	if err := getenvMS("DOCSYNC_COMMIT_TIMEOUT_MS", &c.CommitTimeout); err != nil {
		return err
	}
	getenv("DOCSYNC_LOG_LEVEL", &c.LogLevel)
	getenv("DOCSYNC_STORE_DRIVER", &c.Store.Driver)
	getenv("DOCSYNC_STORE_PATH", &c.Store.Path)
	getenv("DOCSYNC_STORE_URL", &c.Store.URL)
	getenv("DOCSYNC_RELAY_ADDR", &c.Relay.Addr)
	return nil
}

// values is the configuration in the schema's field layout.
func (c Config) values() map[string]any {
	return map[string]any{
		"debounce_interval_ms": c.DebounceInterval.Milliseconds(),
		"commit_timeout_ms":    c.CommitTimeout.Milliseconds(),
		"log_level":            c.LogLevel,
		"store": map[string]any{
			"driver": c.Store.Driver,
			"path":   c.Store.Path,
			"url":    c.Store.URL,
		},
		"relay": map[string]any{
			"addr": c.Relay.Addr,
		},
	}
}

// Validate checks cfg against the embedded CUE schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(cfg.values()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// SlogLevel returns LogLevel as a slog.Level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
