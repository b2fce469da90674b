// Package monitor renders a live terminal dashboard of a firmd server.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/client"
	httpserver "github.com/fyrsmithlabs/firmd/internal/http"
	"github.com/fyrsmithlabs/firmd/internal/perf"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	topRoutes       = 3
	fetchTimeout    = 5 * time.Second
)

// Source is the part of the API the dashboard polls.
type Source interface {
	BaseURL() string
	Health(ctx context.Context) (httpserver.HealthResponse, error)
	Dashboard(ctx context.Context, from, to string) (*analytics.Dashboard, error)
	Perf(ctx context.Context, slow time.Duration) (perf.Report, error)
}

// Model represents the BubbleTea dashboard model
type Model struct {
	source     Source
	interval   time.Duration
	slow       time.Duration
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool

	// Progress bars
	closureProgress    progress.Model
	completionProgress progress.Model
}

// Snapshot holds one poll of the server plus rolling history.
type Snapshot struct {
	Status    string
	Checks    map[string]string
	Dashboard analytics.Dashboard
	// Routes are the slowest routes by p95, worst first.
	Routes []perf.Stats
	Slow   []string

	// Historical data for sparklines (last N polls)
	LatencyHistory   []float64
	OpenCasesHistory []float64
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	// Header style - bright cyan background, bold black text
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	// Section title style - bold bright cyan
	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	// Dim style - for units and secondary info
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling source every interval. Routes whose
// p95 exceeds slow are flagged.
func NewModel(source Source, interval, slow time.Duration) Model {
	closure := progress.New(
		progress.WithGradient("#ff0000", "#00ff00"),
		progress.WithWidth(40),
	)
	completion := progress.New(
		progress.WithGradient("#ff00ff", "#00ffff"),
		progress.WithWidth(40),
	)

	return Model{
		source:             source,
		interval:           interval,
		slow:               slow,
		closureProgress:    closure,
		completionProgress: completion,
		snapshot: Snapshot{
			LatencyHistory:   make([]float64, 0, historySize),
			OpenCasesHistory: make([]float64, 0, historySize),
		},
	}
}

// getLatencyBadge returns a colored status badge based on latency
func getLatencyBadge(latencyMS float64) string {
	if latencyMS < 100 {
		return healthyStyle.Render("[✓]")
	} else if latencyMS < 500 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// getStatusBadge returns the server health badge
func getStatusBadge(status string) string {
	switch status {
	case "ok":
		return healthyStyle.Render("✓ HEALTHY")
	case "degraded":
		return warningStyle.Render("⚠ DEGRADED")
	default:
		return errorStyle.Render("✗ UNKNOWN")
	}
}

// getRateBadge grades a 0-100 rate where higher is better.
func getRateBadge(pct, good, warn float64) string {
	if pct >= good {
		return healthyStyle.Render("[✓]")
	} else if pct >= warn {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchSnapshot(m.source, m.slow),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot polls health, analytics and latency. A degraded server is
// still shown; perf errors leave the latency section empty.
func fetchSnapshot(source Source, slow time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		// endpoints are polled concurrently
		var (
			health httpserver.HealthResponse
			dash   *analytics.Dashboard
			rep    perf.Report
			repErr error
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			health, err = source.Health(gctx)
			if err != nil && !client.IsStatus(err, http.StatusServiceUnavailable) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			var err error
			dash, err = source.Dashboard(gctx, "", "")
			return err
		})
		g.Go(func() error {
			// perf needs analytics:read too; a dashboard without it is fine
			rep, repErr = source.Perf(gctx, slow)
			return nil
		})
		if err := g.Wait(); err != nil {
			return errMsg(err)
		}

		snap := Snapshot{
			Status:    health.Status,
			Checks:    health.Checks,
			Dashboard: *dash,
		}
		if repErr == nil {
			snap.Routes = slowestRoutes(rep.Stats, topRoutes)
			snap.Slow = rep.Slow
		}
		return snapshotMsg(snap)
	}
}

// slowestRoutes returns up to n routes ordered by p95, worst first.
func slowestRoutes(stats []perf.Stats, n int) []perf.Stats {
	out := append([]perf.Stats(nil), stats...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].P95 > out[j].P95 })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.source, m.slow)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchSnapshot(m.source, m.slow),
		)

	case snapshotMsg:
		snap := Snapshot(msg)

		worst := 0.0
		if len(snap.Routes) > 0 {
			worst = float64(snap.Routes[0].P95) / float64(time.Millisecond)
		}
		snap.LatencyHistory = appendToHistory(m.snapshot.LatencyHistory, worst)
		snap.OpenCasesHistory = appendToHistory(m.snapshot.OpenCasesHistory, float64(snap.Dashboard.Cases.Open))

		m.snapshot = snap
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.err != nil {
		return m.renderError()
	}

	return m.renderDashboard()
}

// renderError renders the error view
func (m Model) renderError() string {
	header := headerStyle.Render("firmd Monitor")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot reach firmd") + "\n")
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("URL: ") + valueStyle.Render(m.source.BaseURL()) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n")
	b.WriteString("\n")
	var ae *client.APIError
	if errors.As(m.err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden) {
		b.WriteString(dimStyle.Render("Check --org, --user and --roles; analytics:read is required.") + "\n")
	} else {
		b.WriteString(dimStyle.Render("Please ensure firmd is running and --server is correct.") + "\n")
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

// renderDashboard renders the main dashboard view with sparklines and progress bars
func (m Model) renderDashboard() string {
	var b strings.Builder
	s := m.snapshot
	d := s.Dashboard

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	header := headerStyle.Render(" firmd Monitor ")
	headerLine := fmt.Sprintf("%s   %s   %s",
		getStatusBadge(s.Status),
		dimStyle.Render("Range:"),
		valueStyle.Render(FormatRange(d.Range)))
	b.WriteString(header + "\n")
	b.WriteString(headerLine + "   " + dimStyle.Render(lastUpdateStr) + "\n")
	if failed := failedChecks(s.Checks); failed != "" {
		b.WriteString(warningStyle.Render("  "+failed) + "\n")
	}

	// Revenue
	revenue := make([]float64, len(d.Revenue))
	total := 0.0
	for i, mv := range d.Revenue {
		revenue[i] = mv.Value
		total += mv.Value
	}
	b.WriteString("\n" + sectionStyle.Render("┃ Revenue") + "\n")
	b.WriteString(labelStyle.Render("  Total: ") +
		valueStyle.Render(FormatMoney(total)) +
		"   " + createSparkline(revenue) + "\n")
	b.WriteString(labelStyle.Render("  Forecast: ") +
		valueStyle.Render(formatSeries(d.RevenueForecast.Values)) +
		" " + FormatTrend(d.RevenueForecast.Trend) + "\n")

	// Cases
	b.WriteString("\n" + sectionStyle.Render("┃ Cases") + "\n")
	b.WriteString(labelStyle.Render("  Open: ") +
		valueStyle.Render(fmt.Sprintf("%d", d.Cases.Open)) +
		labelStyle.Render("  Closed: ") +
		valueStyle.Render(fmt.Sprintf("%d", d.Cases.Closed)) +
		"   " + createSparkline(s.OpenCasesHistory) + "\n")
	b.WriteString(labelStyle.Render("  Closure: ") +
		m.closureProgress.ViewAs(clamp01(d.Cases.ClosureRate/100)) +
		" " + dimStyle.Render(FormatPercentage(d.Cases.ClosureRate)) +
		" " + getRateBadge(d.Cases.ClosureRate, 70, 50) + "\n")
	b.WriteString(labelStyle.Render("  Avg Resolution: ") +
		valueStyle.Render(FormatDays(d.Cases.AvgResolutionDays)) + "\n")

	// Tasks
	b.WriteString("\n" + sectionStyle.Render("┃ Tasks") + "\n")
	b.WriteString(labelStyle.Render("  Completion: ") +
		m.completionProgress.ViewAs(clamp01(d.Tasks.CompletionRate/100)) +
		" " + dimStyle.Render(FormatPercentage(d.Tasks.CompletionRate)) +
		" " + getRateBadge(d.Tasks.CompletionRate, 70, 50) + "\n")
	b.WriteString(labelStyle.Render("  Overdue: ") +
		valueStyle.Render(fmt.Sprintf("%d", d.Tasks.Overdue)) +
		dimStyle.Render(fmt.Sprintf(" of %d (%s)", d.Tasks.Total, FormatPercentage(d.Tasks.OverdueRate))) + "\n")

	// Clients
	b.WriteString("\n" + sectionStyle.Render("┃ Clients") + "\n")
	b.WriteString(labelStyle.Render("  New: ") +
		valueStyle.Render(fmt.Sprintf("%d", d.Clients.NewTotal)) +
		labelStyle.Render("  Total: ") +
		valueStyle.Render(fmt.Sprintf("%d → %d", d.Clients.Starting, d.Clients.Starting+d.Clients.NewTotal)) + "\n")

	// API latency
	worst := 0.0
	if n := len(s.LatencyHistory); n > 0 {
		worst = s.LatencyHistory[n-1]
	}
	b.WriteString("\n" + sectionStyle.Render("┃ API Latency") + "\n")
	b.WriteString(labelStyle.Render("  Worst p95: ") +
		valueStyle.Render(perf.FormatLatency(time.Duration(worst*float64(time.Millisecond)))) +
		" " + getLatencyBadge(worst) +
		"   " + createSparkline(s.LatencyHistory) + "\n")
	if len(s.Routes) == 0 {
		b.WriteString(dimStyle.Render("  no requests recorded") + "\n")
	}
	for _, r := range s.Routes {
		name := r.Name
		if contains(s.Slow, r.Name) {
			name = warningStyle.Render(name)
		}
		b.WriteString("  " + name + dimStyle.Render(fmt.Sprintf("  p95 %s  n=%d", perf.FormatLatency(r.P95), r.Count)) + "\n")
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

func failedChecks(checks map[string]string) string {
	var failed []string
	for name, state := range checks {
		if state != "ok" {
			failed = append(failed, name+": "+state)
		}
	}
	sort.Strings(failed)
	return strings.Join(failed, "  ")
}

func formatSeries(values []float64) string {
	if len(values) == 0 {
		return "n/a"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatMoney(v)
	}
	return strings.Join(parts, " → ")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
