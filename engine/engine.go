package engine

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	// Guests built for wasi-threads import a shared memory and need it.
	EnableThreads bool

	// CloseOnContextDone aborts running guests when their context ends.
	CloseOnContextDone bool

	// CacheDir persists compiled code between processes. Empty keeps the
	// cache in memory.
	CacheDir string

	Logger *zap.Logger
}

// Engine owns the compilation cache shared by every runtime it creates.
// Each harness gets its own runtime so host module names never collide, while
// compiled guest code is reused through the cache.
type Engine struct {
	cfg    Config
	cache  wazero.CompilationCache
	logger *zap.Logger
	closed atomic.Bool
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(cfg.CacheDir).
				Cause(err).
				Detail("open compilation cache").
				Build()
		}
		cache = c
	} else {
		cache = wazero.NewCompilationCache()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}
	return &Engine{cfg: cfg, cache: cache, logger: logger}, nil
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) runtimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig().
		WithCompilationCache(e.cache).
		WithCloseOnContextDone(e.cfg.CloseOnContextDone)
	if e.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	if e.cfg.EnableThreads {
		rc = rc.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	return rc
}

// NewRuntime creates a runtime backed by the shared compilation cache. The
// caller closes it.
func (e *Engine) NewRuntime(ctx context.Context) (wazero.Runtime, error) {
	if e.closed.Load() {
		return nil, errors.New(errors.PhaseLoad, errors.KindClosed).Detail("engine closed").Build()
	}
	return wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig()), nil
}

// Close releases the compilation cache. Runtimes created earlier must be
// closed first.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.cache.Close(ctx)
}
