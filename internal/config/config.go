// Package config loads docsync settings.
//
// Precedence, lowest first: built-in defaults, a YAML file, DOCSYNC_*
// environment variables, then command-line flags (applied by the CLI).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfig         = "DOCSYNC_CONFIG"
	EnvDB             = "DOCSYNC_DB"
	EnvPolicy         = "DOCSYNC_POLICY"
	EnvResolveTimeout = "DOCSYNC_RESOLVE_TIMEOUT"
	EnvMetricsAddr    = "DOCSYNC_METRICS_ADDR"
	EnvLogLevel       = "DOCSYNC_LOG_LEVEL"
	EnvLogFormat      = "DOCSYNC_LOG_FORMAT"
	EnvBatchSize      = "DOCSYNC_REPLICATION_BATCH_SIZE"
)

type Config struct {
	// DB is the path of the SQLite database.
	DB string `yaml:"db"`
	// Policy is the path of a CUE resolution policy. Empty means the
	// built-in winner policy.
	Policy string `yaml:"policy"`
	// ResolveTimeout bounds each conflicts callback. 0 disables it.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
	Replication ReplicationConfig `yaml:"replication"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint, "" to disable.
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ReplicationConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	MinBackoff time.Duration `yaml:"min_backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DB:             "docsync.db",
		ResolveTimeout: 30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Replication: ReplicationConfig{
			BatchSize:  100,
			MinBackoff: 100 * time.Millisecond,
			MaxBackoff: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $DOCSYNC_CONFIG when path is empty) and the environment. A missing file
// is an error only when a path was given.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDB); ok && v != "" {
		c.DB = v
	}
	if v, ok := lookup(EnvPolicy); ok {
		c.Policy = v
	}
	if v, ok := lookup(EnvResolveTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvResolveTimeout, err)
		}
		c.ResolveTimeout = d
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.Metrics.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvBatchSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBatchSize, err)
		}
		c.Replication.BatchSize = n
	}
	return nil
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db: path is required"))
	}
	if c.ResolveTimeout < 0 {
		errs = append(errs, fmt.Errorf("resolve_timeout: must not be negative, got %s", c.ResolveTimeout))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: want text or json, got %q", c.Log.Format))
	}
	if c.Replication.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("replication.batch_size: must be positive, got %d", c.Replication.BatchSize))
	}
	if c.Replication.MinBackoff <= 0 || c.Replication.MaxBackoff < c.Replication.MinBackoff {
		errs = append(errs, fmt.Errorf("replication: backoff must satisfy 0 < min_backoff <= max_backoff, got %s and %s",
			c.Replication.MinBackoff, c.Replication.MaxBackoff))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", name)
	}
}
