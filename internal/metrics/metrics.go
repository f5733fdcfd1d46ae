// Package metrics exposes research run counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RunsStarted        prometheus.Counter
	RunsFinished       *prometheus.CounterVec
	Candidates         prometheus.Counter
	DegradedRecords    prometheus.Counter
	SynthesisFallbacks prometheus.Counter
	RunDuration        prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "runs_started_total",
			Help:      "Research runs accepted.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "runs_finished_total",
			Help:      "Research runs finished, by status.",
		}, []string{"status"}),
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "candidates_total",
			Help:      "Candidates processed across all runs.",
		}),
		DegradedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "degraded_records_total",
			Help:      "Candidate records that carry the failure sentinel.",
		}),
		SynthesisFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "synthesis_fallbacks_total",
			Help:      "Runs whose analysis came from the static fallback.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "research",
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished research runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}
	m.registry.MustRegister(
		m.RunsStarted,
		m.RunsFinished,
		m.Candidates,
		m.DegradedRecords,
		m.SynthesisFallbacks,
		m.RunDuration,
	)
	return m
}

// ObserveRun records a finished run. A nil receiver is a no-op.
func (m *Metrics) ObserveRun(status string, candidates int, degraded int, fallback bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsFinished.WithLabelValues(status).Inc()
	m.Candidates.Add(float64(candidates))
	m.DegradedRecords.Add(float64(degraded))
	if fallback {
		m.SynthesisFallbacks.Inc()
	}
	m.RunDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
