package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/firmd/internal/todos"
)

var (
	todosFormat   string
	todosGroupBy  string
	todosFailOn   string
	todosMarkers  string
	todosWatch    bool
	todosDebounce time.Duration
)

func init() {
	todosCmd.Flags().StringVarP(&todosFormat, "format", "f", "console", "output format: console, json or markdown")
	todosCmd.Flags().StringVarP(&todosGroupBy, "group-by", "g", "type", "group by type, file or author")
	todosCmd.Flags().StringVar(&todosFailOn, "fail-on", "", "comma-separated markers that make the command fail, e.g. FIXME,BUG")
	todosCmd.Flags().StringVar(&todosMarkers, "markers", "", "comma-separated markers to look for (overrides .todos.toml)")
	todosCmd.Flags().BoolVarP(&todosWatch, "watch", "w", false, "re-scan whenever files change")
	todosCmd.Flags().DurationVar(&todosDebounce, "debounce", todos.DefaultDebounce, "quiet period before a re-scan in watch mode")
}

// todosCmd scans a source tree for TODO-style comments
var todosCmd = &cobra.Command{
	Use:   "todos [dir]",
	Short: "Scan a source tree for TODO, FIXME and similar comments",
	Long: `Scan a directory for TODO-style comments and report them grouped by
type, file or author. .gitignore rules and a .todos.toml file in the
directory are honored.

Examples:
  # Console summary of the current directory
  firmctl todos

  # Markdown grouped by file
  firmctl todos ./internal -f markdown -g file

  # Fail CI when FIXME or BUG markers remain
  firmctl todos --fail-on FIXME,BUG

  # Keep the report current while editing
  firmctl todos --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTodos,
}

func runTodos(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	format, err := todos.ParseFormat(todosFormat)
	if err != nil {
		return err
	}
	by, err := todos.ParseGroupBy(todosGroupBy)
	if err != nil {
		return err
	}

	cfg, err := todos.LoadConfig(root)
	if err != nil {
		return err
	}
	if m := todos.ParseList(todosMarkers); len(m) > 0 {
		cfg.Markers = m
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	scanner, err := todos.NewScanner(cfg, todos.WithLogger(logger))
	if err != nil {
		return err
	}
	// markers are conventionally upper case; accept --fail-on fixme
	failOn := todos.ParseList(strings.ToUpper(todosFailOn))

	if todosWatch {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return watchTodos(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), scanner, root, format, by)
	}

	res, err := scanner.Scan(cmd.Context(), root)
	if err != nil {
		return err
	}
	if err := todos.Render(cmd.OutOrStdout(), res, format, by); err != nil {
		return err
	}
	return todos.Check(res, failOn)
}

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

func watchTodos(ctx context.Context, out, errOut io.Writer, s *todos.Scanner, root string, format todos.Format, by todos.GroupBy) error {
	w, err := todos.NewWatcher(s, root, todosDebounce)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(res *todos.Result, err error) {
		if err != nil {
			fmt.Fprintf(errOut, "scan failed: %v\n", err)
			return
		}
		if format == todos.FormatConsole {
			fmt.Fprint(out, clearScreen)
		}
		if err := todos.Render(out, res, format, by); err != nil {
			fmt.Fprintf(errOut, "render failed: %v\n", err)
			return
		}
		if format == todos.FormatConsole {
			fmt.Fprintf(out, "\nwatching %s (updated %s, ctrl+c to stop)\n", root, time.Now().Format("15:04:05"))
		}
	})
}
