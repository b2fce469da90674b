package store

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the record store.
type Metrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics registers the store metrics once per process.
//
// Metrics:
//   - firmd_store_query_duration_seconds{op}
//   - firmd_store_query_errors_total{op}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			QueryDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "firmd_store_query_duration_seconds",
					Help:    "Duration of record store queries in seconds",
					Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
				},
				[]string{"op"},
			),
			QueryErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "firmd_store_query_errors_total",
					Help: "Total number of failed record store queries",
				},
				[]string{"op"},
			),
		}
	})
	return globalMetrics
}

// observe records one query. Use as: defer s.observe("op", time.Now(), &err).
func (m *Metrics) observe(op string, start time.Time, err *error) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && *err != nil {
		m.QueryErrors.WithLabelValues(op).Inc()
	}
}
