package main

import (
	"bytes"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/firmd/internal/perf"
)

var (
	perfFormat string
	perfSlow   time.Duration
	perfWindow int
	perfRemote bool
	perfOutput string
)

func init() {
	perfCmd.Flags().StringVarP(&perfFormat, "format", "f", "console", "output format: console or json")
	perfCmd.Flags().DurationVar(&perfSlow, "slow", 0, "flag names whose p95 exceeds this, e.g. 250ms")
	perfCmd.Flags().IntVar(&perfWindow, "window", perf.DefaultWindow, "newest samples kept per name")
	perfCmd.Flags().BoolVar(&perfRemote, "remote", false, "summarize the live route latencies of --server instead of a file")
	perfCmd.Flags().StringVarP(&perfOutput, "output", "o", "", "write the summary to a file instead of stdout")
}

// perfCmd summarizes latency samples
var perfCmd = &cobra.Command{
	Use:   "perf [file]",
	Short: "Summarize latency samples (count, min, max, mean, percentiles)",
	Long: `Aggregate latency samples per name and print count, min, max, mean,
p50, p90, p95 and p99.

The input is a JSON array or JSON lines of samples:
  {"name": "GET /api/v1/clients", "duration_ms": 12.5}

Use "-" to read stdin, or --remote to summarize the route latencies the
firmd server has recorded.

Examples:
  firmctl perf samples.jsonl
  firmctl perf samples.json --slow 250ms -f json
  firmctl perf --remote --org acme --user u1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPerf,
}

func runPerf(cmd *cobra.Command, args []string) error {
	var rep perf.Report
	switch {
	case perfRemote:
		if err := requireIdentity(); err != nil {
			return err
		}
		r, err := apiClient().Perf(cmd.Context(), perfSlow)
		if err != nil {
			return err
		}
		rep = r

	case len(args) == 1:
		samples, err := loadSamples(cmd, args[0])
		if err != nil {
			return err
		}
		agg := perf.NewAggregator(perfWindow)
		agg.RecordAll(samples)
		rep = perf.NewReport(agg, perfSlow)

	default:
		return cmd.Usage()
	}

	var buf bytes.Buffer
	if err := perf.Render(&buf, rep, perfFormat); err != nil {
		return err
	}
	return writeOutput(cmd, perfOutput, buf.Bytes())
}

func loadSamples(cmd *cobra.Command, path string) ([]perf.Sample, error) {
	if path == "-" {
		return perf.Load(cmd.InOrStdin())
	}
	return perf.LoadFile(path)
}
