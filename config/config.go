// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// Input is the root of the definition tree.
	Input string `yaml:"input"`

	// Output is the publish root.
	Output string `yaml:"output"`

	// SkipDirectories are pruned from discovery wherever they appear.
	SkipDirectories []string `yaml:"skip_directories"`

	// VarsFile holds external variables for ${vars.*} references.
	VarsFile string `yaml:"vars_file"`

	// Ledger is the SQLite file recording publish history.
	Ledger string `yaml:"ledger"`

	Cache   CacheConfig   `yaml:"cache"`
	Serve   ServeConfig   `yaml:"serve"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig configures the resolved-document cache.
type CacheConfig struct {
	// Size is the number of resolved documents kept across runs.
	Size int `yaml:"size"`
}

// ServeConfig configures the preview server.
type ServeConfig struct {
	Addr         string        `yaml:"addr"`
	Watch        bool          `yaml:"watch"`
	Debounce     time.Duration `yaml:"debounce"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SyncConfig configures remote mirrors of the publish root.
type SyncConfig struct {
	Git GitSyncConfig `yaml:"git,omitempty"`
	S3  S3SyncConfig  `yaml:"s3,omitempty"`
}

// GitSyncConfig configures the git sync target.
type GitSyncConfig struct {
	URL         string `yaml:"url"`
	Branch      string `yaml:"branch"`
	Message     string `yaml:"message,omitempty"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// S3SyncConfig configures the S3-compatible sync target.
type S3SyncConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "trace", "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics on the preview server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// GitSyncConfigured reports whether a git target is set up.
func (c *Config) GitSyncConfigured() bool {
	return c.Sync.Git.URL != ""
}

// S3SyncConfigured reports whether an S3 target is set up.
func (c *Config) S3SyncConfigured() bool {
	return c.Sync.S3.Endpoint != ""
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables, so secrets stay out of the file
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Environment variables always override file-based configuration
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables
// and defaults. Useful in containers where no config file is mounted.
//
// Environment variables:
//
//	MIMEO_INPUT              - Definition tree root (default: .)
//	MIMEO_OUTPUT             - Publish root (default: publish)
//	MIMEO_VARS_FILE          - External variables file
//	MIMEO_LEDGER             - Ledger path (default: .mimeo/ledger.db)
//	MIMEO_SERVE_ADDR         - Preview server address (default: :8080)
//	MIMEO_SERVE_WATCH        - Rebuild on input changes (default: true)
//	MIMEO_SYNC_GIT_URL       - Git remote for `mimeo sync git`
//	MIMEO_SYNC_GIT_BRANCH    - Git branch (default: main)
//	MIMEO_SYNC_S3_ENDPOINT   - S3 endpoint for `mimeo sync s3`
//	MIMEO_SYNC_S3_ACCESS_KEY - S3 access key
//	MIMEO_SYNC_S3_SECRET_KEY - S3 secret key
//	MIMEO_SYNC_S3_BUCKET     - S3 bucket
//	MIMEO_LOG_LEVEL          - trace, debug, info, warn, error (default: info)
//	MIMEO_LOG_FORMAT         - json or console (default: console)
//	MIMEO_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from path when the file exists and falls back
// to environment variables and defaults otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// LoadVars reads the external variables file backing ${vars.*}
// references. Environment variables in the file are expanded the same
// way as in the config file.
func LoadVars(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vars: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var vars map[string]any
	if err := yaml.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("parse vars: %w", err)
	}
	return vars, nil
}

// applyEnvOverrides applies MIMEO_* environment variables to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIMEO_INPUT"); v != "" {
		cfg.Input = v
	}
	if v := os.Getenv("MIMEO_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("MIMEO_VARS_FILE"); v != "" {
		cfg.VarsFile = v
	}
	if v := os.Getenv("MIMEO_LEDGER"); v != "" {
		cfg.Ledger = v
	}
	if v := os.Getenv("MIMEO_SKIP_DIRECTORIES"); v != "" {
		cfg.SkipDirectories = splitList(v)
	}
	if v := os.Getenv("MIMEO_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Size = n
		}
	}

	// Serve configuration
	if v := os.Getenv("MIMEO_SERVE_ADDR"); v != "" {
		cfg.Serve.Addr = v
	}
	if v := os.Getenv("MIMEO_SERVE_WATCH"); v != "" {
		cfg.Serve.Watch = parseBool(v)
	}
	if v := os.Getenv("MIMEO_SERVE_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Serve.Debounce = d
		}
	}

	// Sync configuration
	if v := os.Getenv("MIMEO_SYNC_GIT_URL"); v != "" {
		cfg.Sync.Git.URL = v
	}
	if v := os.Getenv("MIMEO_SYNC_GIT_BRANCH"); v != "" {
		cfg.Sync.Git.Branch = v
	}
	if v := os.Getenv("MIMEO_SYNC_S3_ENDPOINT"); v != "" {
		cfg.Sync.S3.Endpoint = v
	}
	if v := os.Getenv("MIMEO_SYNC_S3_ACCESS_KEY"); v != "" {
		cfg.Sync.S3.AccessKey = v
	}
	if v := os.Getenv("MIMEO_SYNC_S3_SECRET_KEY"); v != "" {
		cfg.Sync.S3.SecretKey = v
	}
	if v := os.Getenv("MIMEO_SYNC_S3_BUCKET"); v != "" {
		cfg.Sync.S3.Bucket = v
	}
	if v := os.Getenv("MIMEO_SYNC_S3_PREFIX"); v != "" {
		cfg.Sync.S3.Prefix = v
	}
	if v := os.Getenv("MIMEO_SYNC_S3_USE_SSL"); v != "" {
		cfg.Sync.S3.UseSSL = parseBool(v)
	}

	// Logging configuration
	if v := os.Getenv("MIMEO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIMEO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("MIMEO_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("MIMEO_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// splitList splits a comma-separated list, trimming whitespace.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults(cfg *Config) {
	if cfg.Input == "" {
		cfg.Input = "."
	}
	if cfg.Output == "" {
		cfg.Output = "publish"
	}
	if cfg.Ledger == "" {
		cfg.Ledger = ".mimeo/ledger.db"
	}
	if len(cfg.SkipDirectories) == 0 {
		cfg.SkipDirectories = []string{".git", "node_modules"}
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 512
	}

	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = ":8080"
	}
	if cfg.Serve.Debounce == 0 {
		cfg.Serve.Debounce = 500 * time.Millisecond
	}
	if cfg.Serve.ReadTimeout == 0 {
		cfg.Serve.ReadTimeout = 30 * time.Second
	}
	if cfg.Serve.WriteTimeout == 0 {
		cfg.Serve.WriteTimeout = 60 * time.Second
	}

	if cfg.Sync.Git.URL != "" {
		if cfg.Sync.Git.Branch == "" {
			cfg.Sync.Git.Branch = "main"
		}
		if cfg.Sync.Git.AuthorName == "" {
			cfg.Sync.Git.AuthorName = "mimeo"
		}
		if cfg.Sync.Git.AuthorEmail == "" {
			cfg.Sync.Git.AuthorEmail = "mimeo@localhost"
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error; got %q", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative, got %d", cfg.Cache.Size)
	}
	if cfg.Serve.Debounce < 0 {
		return fmt.Errorf("serve.debounce must not be negative, got %s", cfg.Serve.Debounce)
	}

	if cfg.S3SyncConfigured() {
		switch {
		case cfg.Sync.S3.AccessKey == "":
			return fmt.Errorf("sync.s3.access_key is required when sync.s3.endpoint is set")
		case cfg.Sync.S3.SecretKey == "":
			return fmt.Errorf("sync.s3.secret_key is required when sync.s3.endpoint is set")
		case cfg.Sync.S3.Bucket == "":
			return fmt.Errorf("sync.s3.bucket is required when sync.s3.endpoint is set")
		}
	}

	return nil
}
