package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewHTTPMetrics(mp.Meter(instrumentationName), logging.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/api/v1/clients/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "hello")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/api/v1/clients/a", "/api/v1/clients/b", "/health"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}

	requests, ok := byName["firmd.http.requests_total"]
	require.True(t, ok, "requests counter not found")
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	perEndpoint := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("endpoint"))
		perEndpoint[v.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"/api/v1/clients/:id": 2, "/health": 1}, perEndpoint)

	duration, ok := byName["firmd.http.request_duration_seconds"]
	require.True(t, ok, "duration histogram not found")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	_, ok = byName["firmd.http.response_size_bytes"]
	assert.True(t, ok, "response size histogram not found")
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/clients/:id", "/api/v1/clients/:id"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input), tt.input)
	}
}

func TestHTTPMetrics_ErrorCodes(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewHTTPMetrics(mp.Meter(instrumentationName), logging.NewNop())

	e := echo.New()
	e.HTTPErrorHandler = errorHandler(logging.NewNop())
	e.Use(m.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				c.Error(err)
			}
			return nil
		}
	})
	e.GET("/api/v1/cases/:id", func(c echo.Context) error {
		return errBadRequest
	})
	e.GET("/teapot", func(c echo.Context) error {
		return c.NoContent(http.StatusTeapot)
	})

	for _, path := range []string{"/api/v1/cases/1", "/api/v1/cases/2", "/teapot"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	codes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "firmd.http.errors_total" {
				continue
			}
			sum, ok := mt.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("code"))
				codes[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"invalid_input": 2, "418": 1}, codes)
}
