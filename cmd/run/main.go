package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasi-harness/config"
	"github.com/wippyai/wasi-harness/engine"
	"github.com/wippyai/wasi-harness/harness"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	var (
		codeFile    = flag.String("code", "", "Rust source file to run (- for stdin)")
		printLast   = flag.Bool("print-last", false, "Print the value of the final expression")
		interactive = flag.Bool("i", false, "Interactive mode with TUI (default when stdin is a terminal)")
		quiet       = flag.Bool("q", false, "Do not report asset progress on stderr")
	)
	flag.StringVar(&cfg.Manifest, "manifest", cfg.Manifest, "Asset manifest (YAML); empty uses the built-in miri layout")
	flag.StringVar(&cfg.AssetDir, "assets", cfg.AssetDir, "Local asset directory")
	flag.StringVar(&cfg.AssetURL, "assets-url", cfg.AssetURL, "Fetch assets from this base URL instead")
	flag.StringVar(&cfg.CacheDir, "cache", cfg.CacheDir, "Cache directory for fetched assets and compiled code")
	flag.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Log every syscall")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file (required for logs in interactive mode)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	tui := *interactive || (*codeFile == "" && term.IsTerminal(int(os.Stdin.Fd())))
	code, err := run(cfg, tui, *codeFile, *printLast, *quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

func run(cfg *config.Config, tui bool, codeFile string, printLast, quiet bool) (int, error) {
	logger, err := newLogger(cfg, tui)
	if err != nil {
		return 2, err
	}
	defer logger.Sync()
	installLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, reg := newMetrics(cfg)
	if reg != nil {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer srv.Close()
	}

	ec := cfg.Engine()
	ec.Logger = logger.Named("engine")
	eng, err := engine.New(ec)
	if err != nil {
		return 2, err
	}
	defer eng.Close(context.Background())

	w := harness.StartWorker(ctx, harnessInit(cfg, eng, metrics, logger))
	defer w.Close()

	if tui {
		return 0, runInteractive(w, assetCount(cfg))
	}

	var source []byte
	if codeFile == "" || codeFile == "-" {
		source, err = io.ReadAll(os.Stdin)
	} else {
		source, err = os.ReadFile(codeFile)
	}
	if err != nil {
		return 2, fmt.Errorf("read source: %w", err)
	}
	return runBatch(w, harness.Request{
		Source:  string(source),
		Options: harness.RunOptions{PrintTrailingValue: printLast},
	}, quiet)
}

// runBatch waits for the worker, runs one request and prints the result
// text. The exit code is the guest's, or 1 when it trapped.
func runBatch(w *harness.Worker, req harness.Request, quiet bool) (int, error) {
	for ev := range w.Events() {
		switch ev := ev.(type) {
		case harness.AssetLoaded:
			if !quiet {
				fmt.Fprintf(os.Stderr, "loaded %s\n", ev.Name)
			}
		case harness.InitFailed:
			return 2, ev.Err
		case harness.Ready:
			if err := w.Submit(req); err != nil {
				return 2, err
			}
		case harness.RunStarted:
		case harness.RunCompleted:
			fmt.Print(ev.Text)
			if ev.Result == nil {
				return 1, nil
			}
			if ev.Result.Trapped() {
				return 1, nil
			}
			return int(ev.Result.ExitCode), nil
		}
	}
	return 1, stderrors.New("worker stopped before the run completed")
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
