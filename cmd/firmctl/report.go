package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/firmd/internal/report"
)

var (
	reportFormat   string
	reportFrom     string
	reportTo       string
	reportOutput   string
	reportNoCached bool
	reportPretty   bool
	reportWidth    int
)

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "text", "output format: json, markdown, text or console")
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "first month (YYYY-MM), default 11 months before --to")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "last month (YYYY-MM), default current month")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "write the report to a file instead of stdout")
	reportCmd.Flags().BoolVar(&reportNoCached, "fresh", false, "drop cached analytics before generating")
	reportCmd.Flags().BoolVar(&reportPretty, "pretty", false, "fetch Markdown and render it for the terminal")
	reportCmd.Flags().IntVar(&reportWidth, "width", 80, "word wrap width for --pretty")
}

// reportCmd fetches the business report
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch the business report for an organization",
	Long: `Generate the business report on the firmd server and print it.

The report covers revenue, cases, tasks and client growth for the range,
with recommendations where an indicator misses its threshold.

Examples:
  # Text report for the last twelve months
  firmctl report --org acme --user u1

  # Styled Markdown in the terminal
  firmctl report --org acme --user u1 --pretty

  # Markdown for the first half of the year, written to a file
  firmctl report --org acme --user u1 -f markdown --from 2026-01 --to 2026-06 -o h1.md`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := requireIdentity(); err != nil {
		return err
	}
	format, err := report.ParseFormat(reportFormat)
	if err != nil {
		return err
	}
	if reportPretty {
		format = report.FormatMarkdown
	}

	c := apiClient()
	if reportNoCached {
		if _, err := c.InvalidateAnalytics(cmd.Context()); err != nil {
			return fmt.Errorf("invalidating analytics: %w", err)
		}
	}
	body, err := c.Report(cmd.Context(), string(format), reportFrom, reportTo)
	if err != nil {
		return err
	}
	if reportPretty {
		if body, err = renderMarkdown(body, reportWidth); err != nil {
			return err
		}
	}
	return writeOutput(cmd, reportOutput, body)
}

// renderMarkdown styles md for a terminal. The notty style keeps the
// output plain when it is redirected or written to a file.
func renderMarkdown(md []byte, width int) ([]byte, error) {
	style := glamour.WithAutoStyle()
	if reportOutput != "" {
		style = glamour.WithStandardStyle(styles.NoTTYStyle)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.RenderBytes(md)
	if err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
