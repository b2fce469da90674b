package todos

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Format selects an output renderer.
type Format string

const (
	FormatConsole  Format = "console"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates a format name. Empty selects console.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "console", "text":
		return FormatConsole, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ParseGroupBy validates a grouping name. Empty selects type.
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(s)) {
	case "", GroupByType:
		return GroupByType, nil
	case GroupByFile:
		return GroupByFile, nil
	case GroupByAuthor:
		return GroupByAuthor, nil
	default:
		return "", fmt.Errorf("unknown grouping %q", s)
	}
}

// Render writes res to w.
func Render(w io.Writer, res *Result, f Format, by GroupBy) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*Result
			Groups []Group `json:"groups"`
		}{res, res.Groups(by)})
	case FormatMarkdown:
		_, err := io.WriteString(w, formatAsMarkdown(res, by))
		return err
	case FormatConsole, "":
		_, err := io.WriteString(w, formatForConsole(res, by))
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func sortedTypes(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func location(it Item) string {
	return fmt.Sprintf("%s:%d", it.File, it.Line)
}

func details(it Item) string {
	var extra []string
	if it.Author != "" {
		extra = append(extra, "@"+it.Author)
	}
	if it.Date != "" {
		extra = append(extra, it.Date)
	}
	if len(extra) == 0 {
		return ""
	}
	return " (" + strings.Join(extra, ", ") + ")"
}

func formatAsMarkdown(res *Result, by GroupBy) string {
	var sb strings.Builder

	sb.WriteString("# TODO Report\n\n")
	sb.WriteString(fmt.Sprintf("**Total:** %d in %d of %d files\n\n",
		res.Summary.Total, res.Summary.FilesWithHit, res.Summary.FilesScanned))

	if res.Summary.Total == 0 {
		sb.WriteString("No markers found.\n")
		return sb.String()
	}

	sb.WriteString("| Type | Count |\n|---|---:|\n")
	for _, t := range sortedTypes(res.Summary.ByType) {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", t, res.Summary.ByType[t]))
	}
	sb.WriteString("\n")

	for _, g := range res.Groups(by) {
		sb.WriteString(fmt.Sprintf("## %s (%d)\n\n", g.Key, len(g.Items)))
		for _, it := range g.Items {
			label := it.Type
			if by == GroupByType {
				label = location(it)
			}
			sb.WriteString(fmt.Sprintf("- **%s** %s%s `%s`\n", label, it.Message, details(it), location(it)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	groupStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	typeStyles = map[string]lipgloss.Style{
		"FIXME": lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"BUG":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"HACK":  lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		"XXX":   lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		"TODO":  lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
	}

	defaultTypeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
)

func typeStyle(t string) lipgloss.Style {
	if s, ok := typeStyles[t]; ok {
		return s
	}
	return defaultTypeStyle
}

func formatForConsole(res *Result, by GroupBy) string {
	var lines []string
	lines = append(lines, titleStyle.Render(fmt.Sprintf("%d markers in %d files", res.Summary.Total, res.Summary.FilesWithHit)))

	for _, g := range res.Groups(by) {
		lines = append(lines, groupStyle.Render(fmt.Sprintf("%s (%d)", g.Key, len(g.Items))))
		for _, it := range g.Items {
			lines = append(lines, fmt.Sprintf("  %s %s%s %s",
				typeStyle(it.Type).Render(it.Type),
				it.Message,
				details(it),
				locationStyle.Render(location(it))))
		}
	}

	if len(res.Summary.ByType) > 0 {
		var counts []string
		for _, t := range sortedTypes(res.Summary.ByType) {
			counts = append(counts, fmt.Sprintf("%s %d", typeStyle(t).Render(t), res.Summary.ByType[t]))
		}
		lines = append(lines, "", strings.Join(counts, "  "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}
