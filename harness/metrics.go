package harness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for completed runs.
const (
	OutcomeOK       = "ok"
	OutcomeExit     = "exit"
	OutcomeTrap     = "trap"
	OutcomeRejected = "rejected"
)

// Metrics holds the harness's Prometheus collectors.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RunsInFlight prometheus.Gauge
	Syscalls     *prometheus.CounterVec
	OutputBytes  *prometheus.CounterVec
	AssetsLoaded prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_runs_total",
				Help: "Guest runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harness_run_duration_seconds",
				Help:    "Wall time of guest runs",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
		RunsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_runs_in_flight",
				Help: "Runs currently preparing or executing",
			},
		),
		Syscalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_syscalls_total",
				Help: "WASI syscalls issued by guests",
			},
			[]string{"name", "errno"},
		),
		OutputBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_output_bytes_total",
				Help: "Bytes written by guests to standard streams",
			},
			[]string{"stream"},
		),
		AssetsLoaded: f.NewCounter(
			prometheus.CounterOpts{
				Name: "harness_assets_loaded_total",
				Help: "Assets loaded before the harness became ready",
			},
		),
	}
}
