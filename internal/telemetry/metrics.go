// Package telemetry holds the per-run metrics registry and the optional span
// exporter. Neither ever feeds artifact bytes.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "specc"

// Metrics owns a private registry so concurrent runs never share series.
type Metrics struct {
	Registry *prometheus.Registry

	runs         *prometheus.CounterVec
	items        prometheus.Gauge
	requirements *prometheus.GaugeVec
	gateEvents   *prometheus.CounterVec
	coverage     prometheus.Gauge
	quality      prometheus.Gauge
	passDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Compilation runs by primary outcome.",
		}, []string{"outcome"}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "checklist_items",
			Help: "Items in the finalized checklist.",
		}),
		requirements: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "requirements",
			Help: "Extracted requirements by level.",
		}, []string{"level"}),
		gateEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gate_events_total",
			Help: "Gate events by outcome.",
		}, []string{"outcome"}),
		coverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "coverage_ratio",
			Help: "Adjusted requirement coverage.",
		}),
		quality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "quality_score",
			Help: "Checklist quality score (0-100).",
		}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pass_duration_seconds",
			Help:    "Compiler pass durations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"pass"}),
	}
	m.Registry.MustRegister(m.runs, m.items, m.requirements, m.gateEvents, m.coverage, m.quality, m.passDuration)
	return m
}

// RunSample is what the pipeline reports once per run.
type RunSample struct {
	Outcome      string
	Items        int
	Requirements map[string]int
	GateEvents   map[string]int
	Coverage     float64
	Quality      int
	// PassMillis are compiler pass durations in milliseconds.
	PassMillis map[string]float64
}

// Observe records one run. A nil receiver is a no-op.
func (m *Metrics) Observe(s RunSample) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(s.Outcome).Inc()
	m.items.Set(float64(s.Items))
	for level, n := range s.Requirements {
		m.requirements.WithLabelValues(level).Set(float64(n))
	}
	for outcome, n := range s.GateEvents {
		m.gateEvents.WithLabelValues(outcome).Add(float64(n))
	}
	m.coverage.Set(s.Coverage)
	m.quality.Set(float64(s.Quality))
	for pass, ms := range s.PassMillis {
		m.passDuration.WithLabelValues(pass).Observe((time.Duration(ms * float64(time.Millisecond))).Seconds())
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
