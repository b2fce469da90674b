package http

import (
	"context"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricPrefix = "firmd.http."

var (
	durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets     = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000}
)

// HTTPMetrics records per-route request instruments. Instruments that
// failed to register stay nil and are skipped.
type HTTPMetrics struct {
	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
	inflight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the request instruments on meter.
func NewHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(context.Background(), "failed to create instrument",
				zap.String("instrument", metricPrefix+name), zap.Error(err))
		}
	}

	m := &HTTPMetrics{}
	var err error
	m.requests, err = meter.Int64Counter(metricPrefix+"requests_total",
		metric.WithDescription("Requests by method, route and status. The route is the pattern, e.g. /api/v1/cases/:id."),
		metric.WithUnit("{request}"))
	warn("requests_total", err)

	m.failures, err = meter.Int64Counter(metricPrefix+"errors_total",
		metric.WithDescription("Error responses by route and API error code (invalid_input, not_found, rate_limited, ...)."),
		metric.WithUnit("{request}"))
	warn("errors_total", err)

	m.duration, err = meter.Float64Histogram(metricPrefix+"request_duration_seconds",
		metric.WithDescription("Request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	warn("request_duration_seconds", err)

	m.size, err = meter.Int64Histogram(metricPrefix+"response_size_bytes",
		metric.WithDescription("Response body size by method, route and status. Large list pages show up here."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	warn("response_size_bytes", err)

	m.inflight, err = meter.Int64UpDownCounter(metricPrefix+"active_requests",
		metric.WithDescription("Requests currently being served."),
		metric.WithUnit("{request}"))
	warn("active_requests", err)

	return m
}

// MetricsMiddleware returns an Echo middleware that records one
// observation per request. It must run inside requestLog so the status
// it sees is the one written to the client.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if m.inflight != nil {
				m.inflight.Add(ctx, 1)
				defer m.inflight.Add(ctx, -1)
			}

			start := time.Now()
			err := next(c)
			m.observe(ctx, c, time.Since(start))
			return err
		}
	}
}

func (m *HTTPMetrics) observe(ctx context.Context, c echo.Context, elapsed time.Duration) {
	route := normalizePath(c.Path())
	status := c.Response().Status
	attrs := metric.WithAttributes(
		attribute.String("method", c.Request().Method),
		attribute.String("endpoint", route),
		attribute.Int("status", status),
	)

	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.size != nil {
		m.size.Record(ctx, c.Response().Size, attrs)
	}
	if m.failures != nil && status >= 400 {
		code, _ := c.Get(errorCodeKey).(string)
		if code == "" {
			code = strconv.Itoa(status)
		}
		m.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", route),
			attribute.String("code", code),
		))
	}
}

// normalizePath returns the route pattern used as the endpoint label.
// Echo reports patterns such as /api/v1/clients/:id, so ids never reach
// a label. Unrouted requests share one label.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
