package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/assets"
	"github.com/wippyai/wasi-harness/config"
	"github.com/wippyai/wasi-harness/engine"
	"github.com/wippyai/wasi-harness/errors"
	"github.com/wippyai/wasi-harness/harness"
	"github.com/wippyai/wasi-harness/wasi/preview1"
)

// newLogger builds the process logger. In TUI mode output goes to the log
// file only, and is discarded without one.
func newLogger(cfg *config.Config, tui bool) (*zap.Logger, error) {
	if tui && cfg.LogFile == "" {
		return zap.NewNop(), nil
	}
	zc := zap.NewProductionConfig()
	if cfg.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.Level())
	zc.Sampling = nil
	if cfg.LogFile != "" {
		zc.OutputPaths = []string{cfg.LogFile}
		zc.ErrorOutputPaths = []string{cfg.LogFile}
	}
	return zc.Build()
}

func installLogger(l *zap.Logger) {
	engine.SetLogger(l.Named("engine"))
	harness.SetLogger(l.Named("harness"))
	preview1.SetLogger(l.Named("wasi"))
}

func loadManifest(cfg *config.Config) (*assets.Manifest, error) {
	if cfg.Manifest == "" {
		return assets.Default(), nil
	}
	data, err := os.ReadFile(cfg.Manifest)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(cfg.Manifest).
			Detail("read manifest").
			Cause(err).
			Build()
	}
	return assets.ParseManifest(data)
}

func assetSource(cfg *config.Config, logger *zap.Logger) (assets.Source, error) {
	var src assets.Source = assets.DirSource{Root: cfg.AssetDir}
	if cfg.AssetURL != "" {
		s, err := assets.NewHTTPSource(cfg.AssetURL, assets.HTTPOptions{
			RetryMax: cfg.FetchRetries,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		src = s
	}
	if dir := cfg.AssetCacheDir(); dir != "" {
		src = assets.CachedSource{Inner: src, Dir: dir}
	}
	return src, nil
}

// harnessInit returns the worker init: fetch assets, load the guest, build
// the harness.
func harnessInit(cfg *config.Config, eng *engine.Engine, metrics *harness.Metrics, logger *zap.Logger) harness.InitFunc {
	return func(ctx context.Context, loaded func(string)) (*harness.Harness, error) {
		m, err := loadManifest(cfg)
		if err != nil {
			return nil, err
		}
		src, err := assetSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		loader := &assets.Loader{
			Source:      src,
			Concurrency: cfg.FetchConcurrency,
			Logger:      logger.Named("assets"),
			OnLoaded: func(name string) {
				if metrics != nil {
					metrics.AssetsLoaded.Inc()
				}
				loaded(name)
			},
		}
		bundle, err := loader.Load(ctx, m)
		if err != nil {
			return nil, err
		}

		guest, err := eng.LoadGuest(ctx, bundle.Guest, harness.HostSurface())
		if err != nil {
			return nil, err
		}

		hc := harness.DefaultConfig()
		hc.Engine = eng
		hc.Guest = guest
		hc.Preopens = bundle.Preopens
		hc.SourcePreopen = bundle.SourcePreopen
		hc.SourceFile = bundle.SourceFile
		hc.EntropySeed = cfg.EntropySeed
		hc.MaxFileSize = cfg.MaxFileSize
		hc.MaxRunGrowth = cfg.MaxRunGrowth
		hc.RandomEntropy = cfg.RandomEntropy
		hc.Trace = cfg.Trace
		hc.TraceExclusions = cfg.TraceExclude
		hc.TraceLimit = cfg.TraceLimit
		hc.Metrics = metrics
		hc.Logger = logger.Named("harness")
		return harness.New(ctx, hc)
	}
}

func newMetrics(cfg *config.Config) (*harness.Metrics, *prometheus.Registry) {
	if cfg.MetricsAddr == "" {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	return harness.NewMetrics(reg), reg
}

// assetCount is the number of artifacts init will report, or 0 when the
// manifest cannot be read yet.
func assetCount(cfg *config.Config) int {
	m, err := loadManifest(cfg)
	if err != nil {
		return 0
	}
	return len(m.Artifacts())
}
