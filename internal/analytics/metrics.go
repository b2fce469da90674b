package analytics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the analytics cache.
type Metrics struct {
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec
	CacheSize           prometheus.Gauge
}

// NewMetrics registers the analytics metrics once per process.
//
// Metrics:
//   - firmd_analytics_cache_hits_total{metric}
//   - firmd_analytics_cache_misses_total{metric}
//   - firmd_analytics_cache_evictions_total{reason}
//   - firmd_analytics_cache_size
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "firmd_analytics_cache_hits_total",
					Help: "Total number of analytics cache hits",
				},
				[]string{"metric"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "firmd_analytics_cache_misses_total",
					Help: "Total number of analytics cache misses, expired entries included",
				},
				[]string{"metric"},
			),
			CacheEvictionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "firmd_analytics_cache_evictions_total",
					Help: "Total number of analytics cache entries removed",
				},
				[]string{"reason"}, // "expired", "capacity", "invalidated"
			),
			CacheSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "firmd_analytics_cache_size",
					Help: "Current number of analytics cache entries",
				},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) hit(key string) {
	if m != nil {
		m.CacheHitsTotal.WithLabelValues(metricOf(key)).Inc()
	}
}

func (m *Metrics) miss(key string) {
	if m != nil {
		m.CacheMissesTotal.WithLabelValues(metricOf(key)).Inc()
	}
}

func (m *Metrics) evicted(reason string, n int) {
	if m != nil && n > 0 {
		m.CacheEvictionsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) size(n int) {
	if m != nil {
		m.CacheSize.Set(float64(n))
	}
}
