package config

import (
	stderrors "errors"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasi-harness/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() = %+v\nDefault() = %+v", cfg, Default())
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("HARNESS_ASSET_URL", "https://example.com/wasm-rustc")
	t.Setenv("HARNESS_CACHE_DIR", "/var/cache/harness")
	t.Setenv("HARNESS_MEMORY_LIMIT_PAGES", "256")
	t.Setenv("HARNESS_THREADS", "false")
	t.Setenv("HARNESS_TRACE", "true")
	t.Setenv("HARNESS_TRACE_EXCLUDE", "fd_prestat_get,fd_write")
	t.Setenv("HARNESS_LOG_LEVEL", "debug")
	t.Setenv("HARNESS_ENTROPY_SEED", "42")
	t.Setenv("HARNESS_MAX_FILE_SIZE", "1048576")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AssetURL != "https://example.com/wasm-rustc" {
		t.Errorf("AssetURL = %q", cfg.AssetURL)
	}
	if !cfg.Trace || len(cfg.TraceExclude) != 2 || cfg.TraceExclude[1] != "fd_write" {
		t.Errorf("trace settings = %v %v", cfg.Trace, cfg.TraceExclude)
	}
	if cfg.Level() != zapcore.DebugLevel {
		t.Errorf("Level = %s", cfg.Level())
	}
	if cfg.EntropySeed != 42 {
		t.Errorf("EntropySeed = %d", cfg.EntropySeed)
	}
	if cfg.MaxFileSize != 1<<20 || cfg.MaxRunGrowth != 1<<30 {
		t.Errorf("file limits = %d, %d", cfg.MaxFileSize, cfg.MaxRunGrowth)
	}

	ec := cfg.Engine()
	if ec.MemoryLimitPages != 256 || ec.EnableThreads {
		t.Errorf("engine config = %+v", ec)
	}
	if ec.CacheDir != filepath.Join("/var/cache/harness", "compiled") {
		t.Errorf("compiled cache = %q", ec.CacheDir)
	}
	if cfg.AssetCacheDir() != filepath.Join("/var/cache/harness", "assets") {
		t.Errorf("asset cache = %q", cfg.AssetCacheDir())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparsable number", "HARNESS_MEMORY_LIMIT_PAGES", "lots"},
		{"unknown level", "HARNESS_LOG_LEVEL", "verbose"},
		{"too many pages", "HARNESS_MEMORY_LIMIT_PAGES", "65537"},
		{"no fetch workers", "HARNESS_FETCH_CONCURRENCY", "0"},
		{"zero file size", "HARNESS_MAX_FILE_SIZE", "0"},
		{"negative run growth", "HARNESS_MAX_RUN_GROWTH", "-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}) {
				t.Errorf("Load = %v, want invalid config", err)
			}
		})
	}
}

func TestConfig_NoCacheDir(t *testing.T) {
	cfg := Default()
	if cfg.Engine().CacheDir != "" || cfg.AssetCacheDir() != "" {
		t.Error("caching should be off without a cache dir")
	}
}
