package monitor

import (
	"fmt"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
)

// FormatMoney formats an amount in major units as "950.00", "12.3K" or "1.2M".
// No currency symbol is shown since revenue may mix billing currencies.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%s%.1fM", sign, v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%s%.1fK", sign, v/1_000)
	default:
		return fmt.Sprintf("%s%.2f", sign, v)
	}
}

// FormatPercentage formats a 0-100 value as "X.X%"
func FormatPercentage(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatDays formats a day count, "n/a" when nothing was resolved
func FormatDays(days float64) string {
	if days <= 0 {
		return "n/a"
	}
	if days == 1 {
		return "1.0 day"
	}
	return fmt.Sprintf("%.1f days", days)
}

// FormatTrend renders a trend as an arrow
func FormatTrend(t analytics.Trend) string {
	switch t {
	case analytics.TrendUp:
		return healthyStyle.Render("▲ up")
	case analytics.TrendDown:
		return errorStyle.Render("▼ down")
	default:
		return dimStyle.Render("► flat")
	}
}

// FormatRange formats a month range as "2025-11 … 2026-10"
func FormatRange(r analytics.Range) string {
	if r.From.IsZero() || r.To.IsZero() {
		return "last 12 months"
	}
	return r.From.Format("2006-01") + " … " + r.To.Format("2006-01")
}
