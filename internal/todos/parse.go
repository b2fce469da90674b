package todos

import (
	"regexp"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Parser extracts marker comments from source lines.
type Parser struct {
	re *regexp.Regexp
}

// NewParser compiles a parser for markers. Markers are matched
// case-sensitively and must follow a comment opener.
func NewParser(markers []string) *Parser {
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = regexp.QuoteMeta(m)
	}
	// opener, marker, (author|date), [date] or (date), message
	pattern := `(?:^|[^:\w])(?://+|#+|/\*+|\*|<!--|--)\s*` +
		`(` + strings.Join(quoted, "|") + `)\b` +
		`(?:\(([^)]*)\))?` +
		`\s*(?:\[(\d{4}-\d{2}-\d{2})\]|\((\d{4}-\d{2}-\d{2})\))?` +
		`\s*:?(.*)$`
	return &Parser{re: regexp.MustCompile(pattern)}
}

// ParseLine returns the item found on line, if any. File and Line are
// left for the caller.
func (p *Parser) ParseLine(line string) (Item, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return Item{}, false
	}

	item := Item{Type: m[1]}
	author := strings.TrimSpace(m[2])
	date := m[3]
	if date == "" {
		date = m[4]
	}
	// A parenthesized date is a date, not an author.
	if date == "" && isDate(author) {
		date, author = author, ""
	}
	item.Author = author
	if isDate(date) {
		item.Date = date
	}
	item.Message = cleanMessage(m[5])
	return item, true
}

func isDate(s string) bool {
	if len(s) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// cleanMessage trims whitespace and trailing comment closers.
func cleanMessage(s string) string {
	s = strings.TrimSpace(s)
	for {
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "*/"), "-->"))
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}
