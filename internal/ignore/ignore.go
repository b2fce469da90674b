// Package ignore decides which paths a source scan skips, using
// gitignore-style files and glob excludes.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{".git", "node_modules", "vendor", "dist", "build", "coverage"}

// Parser reads and parses gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are used when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// Matcher reports whether a path relative to the project root is ignored.
type Matcher struct {
	patterns []string
	skipDirs map[string]bool
	matcher  gitignore.Matcher
}

// NewMatcher builds a matcher from gitignore-syntax patterns. Directories
// named in skipDirs are ignored wherever they appear.
func NewMatcher(patterns, skipDirs []string) *Matcher {
	patterns = deduplicate(patterns)
	parsed := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		parsed = append(parsed, gitignore.ParsePattern(p, nil))
	}
	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		skip[d] = true
	}
	return &Matcher{
		patterns: patterns,
		skipDirs: skip,
		matcher:  gitignore.NewMatcher(parsed),
	}
}

// ParseProject reads all ignore files from the project root and returns a
// matcher over their patterns plus extra. If no ignore files are found the
// fallback patterns are used instead.
func (p *Parser) ParseProject(projectRoot string, skipDirs []string, extra ...string) (*Matcher, error) {
	var patterns []string
	foundAny := false

	for _, ignoreFile := range p.IgnoreFiles {
		path := filepath.Join(projectRoot, ignoreFile)
		filePatterns, err := p.parseFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
		foundAny = true
	}

	if !foundAny {
		patterns = append(patterns, p.FallbackPatterns...)
	}
	patterns = append(patterns, extra...)

	return NewMatcher(patterns, skipDirs), nil
}

// Patterns returns the deduplicated patterns in load order.
func (m *Matcher) Patterns() []string {
	return m.patterns
}

// Match reports whether rel, a slash or OS separated path relative to the
// root, is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	parts := strings.Split(rel, "/")
	if isDir && m.skipDirs[parts[len(parts)-1]] {
		return true
	}
	return m.matcher.Match(parts, isDir)
}

// SkipDir reports whether a directory name is always skipped.
func (m *Matcher) SkipDir(name string) bool {
	return m.skipDirs[name]
}

// parseFile reads a single gitignore-style file and returns patterns.
func (p *Parser) parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}

// parseLine parses a single line from a gitignore file.
// Returns empty string for comments and blank lines.
func parseLine(line string) string {
	// Escaped trailing spaces are significant in gitignore.
	if !strings.HasSuffix(line, `\ `) {
		line = strings.TrimRight(line, " \t")
	}
	line = strings.TrimSuffix(line, "\r")

	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	return result
}
