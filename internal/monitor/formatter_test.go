package monitor

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected string
	}{
		{"zero", 0, "0.00"},
		{"small", 950, "950.00"},
		{"thousands", 12_345, "12.3K"},
		{"millions", 1_250_000, "1.2M"},
		{"negative", -2_500, "-2.5K"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMoney(tt.value))
		})
	}
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "75.0%", FormatPercentage(75))
	assert.Equal(t, "0.0%", FormatPercentage(0))
	assert.Equal(t, "33.3%", FormatPercentage(100.0/3))
}

func TestFormatDays(t *testing.T) {
	assert.Equal(t, "n/a", FormatDays(0))
	assert.Equal(t, "1.0 day", FormatDays(1))
	assert.Equal(t, "12.5 days", FormatDays(12.5))
}

func TestFormatTrend(t *testing.T) {
	assert.Contains(t, FormatTrend(analytics.TrendUp), "up")
	assert.Contains(t, FormatTrend(analytics.TrendDown), "down")
	assert.Contains(t, FormatTrend(analytics.TrendFlat), "flat")
}

func TestFormatRange(t *testing.T) {
	assert.Equal(t, "last 12 months", FormatRange(analytics.Range{}))

	r := analytics.Range{
		From: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "2025-11 … 2026-10", FormatRange(r))
}
