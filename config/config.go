// Package config loads harness settings from HARNESS_* environment
// variables.
package config

import (
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasi-harness/engine"
	"github.com/wippyai/wasi-harness/errors"
	"github.com/wippyai/wasi-harness/vfs"
)

// Prefix is prepended to every variable name.
const Prefix = "HARNESS"

// Config holds all harness configuration.
type Config struct {
	// Manifest is a YAML manifest path; empty selects the embedded one.
	Manifest string `envconfig:"MANIFEST"`
	AssetDir string `envconfig:"ASSET_DIR" default:"wasm-rustc"`
	// AssetURL, when set, fetches artifacts over HTTP instead of AssetDir.
	AssetURL         string `envconfig:"ASSET_URL"`
	CacheDir         string `envconfig:"CACHE_DIR"`
	FetchConcurrency int    `envconfig:"FETCH_CONCURRENCY" default:"8"`
	FetchRetries     int    `envconfig:"FETCH_RETRIES" default:"3"`

	// MemoryLimitPages caps every memory; 0 keeps the wazero default. Guests
	// declaring a larger maximum fail to load.
	MemoryLimitPages   uint32 `envconfig:"MEMORY_LIMIT_PAGES" default:"0"`
	Threads            bool   `envconfig:"THREADS" default:"true"`
	CloseOnContextDone bool   `envconfig:"CLOSE_ON_CONTEXT_DONE" default:"true"`

	EntropySeed   uint64 `envconfig:"ENTROPY_SEED" default:"0"`
	RandomEntropy bool   `envconfig:"RANDOM_ENTROPY" default:"false"`

	// MaxFileSize caps any file a guest writes; MaxRunGrowth caps the bytes
	// all guest files may grow by in one run.
	MaxFileSize  int64 `envconfig:"MAX_FILE_SIZE" default:"268435456"`
	MaxRunGrowth int64 `envconfig:"MAX_RUN_GROWTH" default:"1073741824"`

	Trace        bool     `envconfig:"TRACE" default:"false"`
	TraceExclude []string `envconfig:"TRACE_EXCLUDE" default:"fd_prestat_get"`
	TraceLimit   int      `envconfig:"TRACE_LIMIT" default:"4096"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`
	LogFile  string `envconfig:"LOG_FILE"`

	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load yields for an empty environment.
func Default() *Config {
	return &Config{
		AssetDir:           "wasm-rustc",
		FetchConcurrency:   8,
		FetchRetries:       3,
		Threads:            true,
		CloseOnContextDone: true,
		MaxFileSize:        vfs.DefaultMaxFileSize,
		MaxRunGrowth:       vfs.DefaultMaxGrowth,
		TraceExclude:       []string{"fd_prestat_get"},
		TraceLimit:         4096,
		LogLevel:           "info",
	}
}

// Validate rejects values no component can honor.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid log level %q", c.LogLevel).
			Cause(err).
			Build()
	}
	if c.MemoryLimitPages > 65536 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.MemoryLimitPages).
			Detail("memory limit must not exceed 65536 pages").
			Build()
	}
	if c.MaxFileSize < 1 || c.MaxRunGrowth < 1 {
		return errors.InvalidInput(errors.PhaseConfig, "file size and run growth limits must be positive")
	}
	if c.FetchConcurrency < 1 {
		return errors.InvalidInput(errors.PhaseConfig, "fetch concurrency must be positive")
	}
	if c.AssetURL == "" && c.AssetDir == "" {
		return errors.InvalidInput(errors.PhaseConfig, "one of asset dir or asset URL is required")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// Engine returns the engine settings. Compiled code is cached under
// CacheDir/compiled when a cache dir is set.
func (c *Config) Engine() engine.Config {
	ec := engine.Config{
		MemoryLimitPages:   c.MemoryLimitPages,
		EnableThreads:      c.Threads,
		CloseOnContextDone: c.CloseOnContextDone,
	}
	if c.CacheDir != "" {
		ec.CacheDir = filepath.Join(c.CacheDir, "compiled")
	}
	return ec
}

// AssetCacheDir is where fetched artifacts are kept, or empty when caching is
// off.
func (c *Config) AssetCacheDir() string {
	if c.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.CacheDir, "assets")
}
