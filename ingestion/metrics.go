package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "dms_ingestion_"

// Metrics records sweep and per-document counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	documents *prometheus.CounterVec
	sweeps    *prometheus.CounterVec
	active    prometheus.Gauge
	duration  prometheus.Histogram
}

// NewMetrics registers the ingestion collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "documents_total",
				Help: "Documents processed by ingestion sweeps, by terminal status",
			},
			[]string{"status"},
		),
		sweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweeps_total",
				Help: "Ingestion sweeps finished, by result",
			},
			[]string{"result"},
		),
		active: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active",
				Help: "1 while an ingestion sweep is running",
			},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "document_duration_seconds",
				Help:    "Time spent processing a single document",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}
}

func (m *Metrics) sweepStarted() {
	if m == nil {
		return
	}
	m.active.Set(1)
}

func (m *Metrics) sweepFinished(result string) {
	if m == nil {
		return
	}
	m.active.Set(0)
	m.sweeps.WithLabelValues(result).Inc()
}

func (m *Metrics) documentDone(status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(string(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
}
