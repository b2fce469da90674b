package perf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Report is the serialized form of a summary.
type Report struct {
	Stats     []Stats       `json:"stats"`
	Slow      []string      `json:"slow,omitempty"`
	Threshold time.Duration `json:"-"`
}

// NewReport summarizes a, flagging names whose P95 exceeds threshold. A
// zero threshold flags nothing.
func NewReport(a *Aggregator, threshold time.Duration) Report {
	r := Report{Stats: a.Summary(), Threshold: threshold}
	if threshold > 0 {
		for _, s := range r.Stats {
			if s.P95 > threshold {
				r.Slow = append(r.Slow, s.Name)
			}
		}
	}
	return r
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	slowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// Render writes the report as "console" or "json".
func Render(w io.Writer, r Report, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "", "console", "text":
		_, err := io.WriteString(w, formatTable(r))
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FormatLatency renders a duration as "X.Xms" or "X.XXs".
func FormatLatency(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", toMS(d))
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatTable(r Report) string {
	if len(r.Stats) == 0 {
		return dimStyle.Render("no samples") + "\n"
	}

	width := len("name")
	for _, s := range r.Stats {
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}
	slow := make(map[string]bool, len(r.Slow))
	for _, n := range r.Slow {
		slow[n] = true
	}

	cols := []string{"count", "min", "mean", "p50", "p90", "p95", "p99", "max"}
	var sb strings.Builder
	header := fmt.Sprintf("%-*s", width, "name")
	for _, c := range cols {
		header += fmt.Sprintf(" %9s", c)
	}
	sb.WriteString(headerStyle.Render(header) + "\n")

	for _, s := range r.Stats {
		line := fmt.Sprintf("%-*s %9d", width, s.Name, s.Count)
		for _, d := range []time.Duration{s.Min, s.Mean, s.P50, s.P90, s.P95, s.P99, s.Max} {
			line += fmt.Sprintf(" %9s", FormatLatency(d))
		}
		if slow[s.Name] {
			line = slowStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}

	if r.Threshold > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%d of %d over p95 %s", len(r.Slow), len(r.Stats), FormatLatency(r.Threshold))) + "\n")
	}
	return sb.String()
}
