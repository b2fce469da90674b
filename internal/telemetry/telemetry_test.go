package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/firmd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local", func(c *Config) { c.Enabled = true }, false},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, true},
		{"remote insecure", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, true},
		{"remote tls", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, false},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"http scheme local", func(c *Config) {
			c.Enabled = true
			c.Protocol = ProtocolHTTP
			c.Endpoint = "http://127.0.0.1:4318"
		}, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "thrift" }, true},
		{"bad sample rate", func(c *Config) { c.Enabled = true; c.SampleRate = 2 }, true},
		{"zero interval", func(c *Config) { c.Enabled = true; c.ExportInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromObservability(t *testing.T) {
	cfg := FromObservability(config.ObservabilityConfig{EnableTelemetry: true, ServiceName: "firmd-eu"}, "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "firmd-eu", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTestTelemetry_RecordsSpansAndMetrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "load-dashboard")
	span.End()
	require.Len(t, tt.Spans.Ended(), 1)
	assert.Equal(t, "load-dashboard", tt.Spans.Ended()[0].Name())

	counter, err := tt.Meter("test").Int64Counter("firmd.test.count")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	m, ok := FindMetric(rm, "firmd.test.count")
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}
