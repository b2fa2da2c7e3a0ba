// Package metrics exposes Prometheus instrumentation for the storage
// layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"registra/internal/core/tx"
)

// TxMetrics records transaction outcomes and timings.
type TxMetrics struct {
	total    *prometheus.CounterVec
	attempts prometheus.Histogram
	duration *prometheus.HistogramVec
}

var _ tx.Metrics = (*TxMetrics)(nil)

// NewTxMetrics registers transaction metrics on the given registerer.
// Pass prometheus.DefaultRegisterer for the process-global registry.
func NewTxMetrics(reg prometheus.Registerer) *TxMetrics {
	factory := promauto.With(reg)

	return &TxMetrics{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registra",
			Subsystem: "tx",
			Name:      "units_total",
			Help:      "Units of work by outcome.",
		}, []string{"outcome"}),
		attempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "registra",
			Subsystem: "tx",
			Name:      "attempts",
			Help:      "Attempts needed per unit of work, including retries.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registra",
			Subsystem: "tx",
			Name:      "duration_seconds",
			Help:      "Wall time per unit of work, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

// RecordUnitOfWork implements tx.Metrics.
func (m *TxMetrics) RecordUnitOfWork(outcome tx.Outcome, attempts int, duration time.Duration) {
	m.total.WithLabelValues(string(outcome)).Inc()
	m.attempts.Observe(float64(attempts))
	m.duration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}
