package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/firmd/internal/monitor"
)

var (
	monitorInterval time.Duration
	monitorSlow     time.Duration
)

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "refresh interval")
	monitorCmd.Flags().DurationVar(&monitorSlow, "slow", 250*time.Millisecond, "flag routes whose p95 exceeds this")
}

// monitorCmd runs the live dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live terminal dashboard for an organization",
	Long: `Poll firmd and show revenue, cases, tasks, client growth and API
latency in a live terminal dashboard.

Keys: q quits, r refreshes.

Examples:
  firmctl monitor --org acme --user u1
  firmctl monitor --org acme --user u1 --interval 10s --slow 100ms`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := requireIdentity(); err != nil {
		return err
	}
	model := monitor.NewModel(apiClient(), monitorInterval, monitorSlow)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err := p.Run()
	return err
}
