package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ErrUnknownFormat is returned for an unsupported render format.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat validates a format name. Empty selects JSON; "md" is
// accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	case "console":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the HTTP content type of a rendered format.
func ContentType(f Format) string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatText, FormatConsole:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Render writes report to w in format f.
func Render(w io.Writer, report *Report, f Format) error {
	switch f {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatMarkdown:
		_, err := io.WriteString(w, formatAsMarkdown(report))
		return err
	case FormatText:
		_, err := io.WriteString(w, formatAsText(report))
		return err
	case FormatConsole:
		_, err := io.WriteString(w, formatForConsole(report))
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func sortedStatuses(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatAsMarkdown formats the report as markdown.
func formatAsMarkdown(report *Report) string {
	var sb strings.Builder
	s := report.Sections

	sb.WriteString("# Business Report\n\n")
	sb.WriteString(fmt.Sprintf("**Organization:** %s\n", report.OrgID))
	sb.WriteString(fmt.Sprintf("**Period:** %s\n", report.Range.String()))
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString(report.Summary + "\n\n")

	sb.WriteString("## Revenue\n\n")
	sb.WriteString(fmt.Sprintf("- Total: %.2f\n", s.Revenue.Total))
	sb.WriteString(fmt.Sprintf("- Monthly average: %.2f\n", s.Revenue.MonthlyAverage))
	if s.Revenue.BestMonth != "" {
		sb.WriteString(fmt.Sprintf("- Best month: %s (%.2f)\n", s.Revenue.BestMonth, s.Revenue.BestMonthValue))
	}
	sb.WriteString(fmt.Sprintf("- Month-over-month change: %+.1f%%\n\n", s.Revenue.ChangePct))
	if len(s.Revenue.Monthly) > 0 {
		sb.WriteString("| Month | Revenue |\n|---|---:|\n")
		for _, m := range s.Revenue.Monthly {
			sb.WriteString(fmt.Sprintf("| %s | %.2f |\n", m.Month, m.Value))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Cases\n\n")
	sb.WriteString(fmt.Sprintf("- Opened: %d (%d open, %d closed)\n", s.Cases.Total, s.Cases.Open, s.Cases.Closed))
	sb.WriteString(fmt.Sprintf("- Closure rate: %.1f%%\n", s.Cases.ClosureRate))
	sb.WriteString(fmt.Sprintf("- Average resolution: %.1f days\n", s.Cases.AvgResolutionDays))
	for _, status := range sortedStatuses(s.Cases.ByStatus) {
		sb.WriteString(fmt.Sprintf("  - %s: %d\n", status, s.Cases.ByStatus[status]))
	}
	sb.WriteString("\n")

	sb.WriteString("## Tasks\n\n")
	sb.WriteString(fmt.Sprintf("- Created: %d\n", s.Tasks.Total))
	sb.WriteString(fmt.Sprintf("- Completion rate: %.1f%%\n", s.Tasks.CompletionRate))
	sb.WriteString(fmt.Sprintf("- Overdue: %d (%.1f%%)\n\n", s.Tasks.Overdue, s.Tasks.OverduePct))

	sb.WriteString("## Clients\n\n")
	sb.WriteString(fmt.Sprintf("- New clients: %d (%.1f per month)\n", s.Clients.NewTotal, s.Clients.MonthlyAverage))
	sb.WriteString(fmt.Sprintf("- Growth: %.1f%% (%d to %d)\n\n", s.Clients.GrowthPct, s.Clients.Starting, s.Clients.Ending))

	if len(report.Recommendations) > 0 {
		sb.WriteString("## Recommendations\n\n")
		for _, rec := range report.Recommendations {
			sb.WriteString(fmt.Sprintf("- **%s:** %s\n", rec.Area, rec.Message))
		}
	}

	return sb.String()
}

// formatAsText formats the report as plain text.
func formatAsText(report *Report) string {
	var sb strings.Builder
	s := report.Sections

	sb.WriteString("BUSINESS REPORT\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString(fmt.Sprintf("Organization: %s\n", report.OrgID))
	sb.WriteString(fmt.Sprintf("Period: %s\n", report.Range.String()))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339)))

	section := func(title string) {
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
	}

	section("SUMMARY")
	sb.WriteString(report.Summary + "\n\n")

	section("REVENUE")
	sb.WriteString(fmt.Sprintf("Total: %.2f\n", s.Revenue.Total))
	sb.WriteString(fmt.Sprintf("Monthly Average: %.2f\n", s.Revenue.MonthlyAverage))
	if s.Revenue.BestMonth != "" {
		sb.WriteString(fmt.Sprintf("Best Month: %s (%.2f)\n", s.Revenue.BestMonth, s.Revenue.BestMonthValue))
	}
	sb.WriteString(fmt.Sprintf("Change: %+.1f%%\n\n", s.Revenue.ChangePct))

	section("CASES")
	sb.WriteString(fmt.Sprintf("Opened: %d\n", s.Cases.Total))
	sb.WriteString(fmt.Sprintf("Closure Rate: %.1f%%\n", s.Cases.ClosureRate))
	sb.WriteString(fmt.Sprintf("Average Resolution: %.1f days\n\n", s.Cases.AvgResolutionDays))

	section("TASKS")
	sb.WriteString(fmt.Sprintf("Created: %d\n", s.Tasks.Total))
	sb.WriteString(fmt.Sprintf("Completion Rate: %.1f%%\n", s.Tasks.CompletionRate))
	sb.WriteString(fmt.Sprintf("Overdue: %.1f%%\n\n", s.Tasks.OverduePct))

	section("CLIENTS")
	sb.WriteString(fmt.Sprintf("New: %d\n", s.Clients.NewTotal))
	sb.WriteString(fmt.Sprintf("Growth: %.1f%%\n\n", s.Clients.GrowthPct))

	if len(report.Recommendations) > 0 {
		section("RECOMMENDATIONS")
		for i, rec := range report.Recommendations {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, rec.Message))
		}
	}

	return sb.String()
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Width(20)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)
)

// formatForConsole renders the report for a terminal.
func formatForConsole(report *Report) string {
	s := report.Sections
	var lines []string

	row := func(label, value string) {
		lines = append(lines, labelStyle.Render(label)+valueStyle.Render(value))
	}

	lines = append(lines, headerStyle.Render("Business Report "+report.Range.String()))
	lines = append(lines, dimStyle.Render(fmt.Sprintf("%s  generated %s", report.OrgID, report.GeneratedAt.Format(time.RFC3339))))

	lines = append(lines, sectionStyle.Render("Revenue"))
	row("Total", fmt.Sprintf("%.2f", s.Revenue.Total))
	row("Monthly average", fmt.Sprintf("%.2f", s.Revenue.MonthlyAverage))
	if s.Revenue.BestMonth != "" {
		row("Best month", fmt.Sprintf("%s (%.2f)", s.Revenue.BestMonth, s.Revenue.BestMonthValue))
	}
	row("Change", fmt.Sprintf("%+.1f%%", s.Revenue.ChangePct))

	lines = append(lines, sectionStyle.Render("Cases"))
	row("Opened", fmt.Sprintf("%d", s.Cases.Total))
	row("Closure rate", fmt.Sprintf("%.1f%%", s.Cases.ClosureRate))
	row("Avg resolution", fmt.Sprintf("%.1f days", s.Cases.AvgResolutionDays))

	lines = append(lines, sectionStyle.Render("Tasks"))
	row("Created", fmt.Sprintf("%d", s.Tasks.Total))
	row("Completion", fmt.Sprintf("%.1f%%", s.Tasks.CompletionRate))
	row("Overdue", fmt.Sprintf("%.1f%%", s.Tasks.OverduePct))

	lines = append(lines, sectionStyle.Render("Clients"))
	row("New", fmt.Sprintf("%d", s.Clients.NewTotal))
	row("Growth", fmt.Sprintf("%.1f%%", s.Clients.GrowthPct))

	lines = append(lines, sectionStyle.Render("Recommendations"))
	for _, rec := range report.Recommendations {
		style := warnStyle
		marker := "!"
		if rec.Area == AreaOverview {
			style, marker = okStyle, "✓"
		}
		lines = append(lines, style.Render(marker)+" "+rec.Message)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}
