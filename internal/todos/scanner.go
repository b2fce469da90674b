package todos

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/firmd/internal/ignore"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"go.uber.org/zap"
)

// sniffLen is how much of a file is checked for NUL bytes.
const sniffLen = 8000

// ErrMarkersFound is returned by Check when a failing marker is present.
var ErrMarkersFound = errors.New("failing markers found")

// Scanner walks a tree and collects marker comments.
type Scanner struct {
	cfg        Config
	parser     *Parser
	extensions map[string]bool
	logger     *logging.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithLogger sets the scanner logger.
func WithLogger(l *logging.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner creates a scanner for cfg.
func NewScanner(cfg Config, opts ...ScannerOption) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:        cfg,
		parser:     NewParser(cfg.Markers),
		extensions: make(map[string]bool, len(cfg.Extensions)),
		logger:     logging.NewNop(),
	}
	for _, ext := range cfg.Extensions {
		s.extensions[strings.ToLower(ext)] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

// Scannable reports whether a file name has a scanned extension.
func (s *Scanner) Scannable(name string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(name))]
}

// matcher loads the root .gitignore plus the configured excludes.
func (s *Scanner) matcher(root string) (*ignore.Matcher, error) {
	parser := ignore.NewParser([]string{".gitignore"}, nil)
	return parser.ParseProject(root, ignore.DefaultSkipDirs, s.cfg.Exclude...)
}

// Scan walks root and returns every marker comment found. File paths in
// the result are relative to root and slash separated.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s: not a directory", root)
	}

	m, err := s.matcher(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	res := &Result{Root: root, Items: []Item{}}
	scanned := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			s.logger.Warn(ctx, "skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && m.Match(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.Scannable(d.Name()) || m.Match(rel, false) {
			return nil
		}

		items, ok, err := s.scanFile(path, filepath.ToSlash(rel))
		if err != nil {
			s.logger.Warn(ctx, "skipping file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		if ok {
			scanned++
			res.Items = append(res.Items, items...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(res.Items, func(i, j int) bool {
		if res.Items[i].File != res.Items[j].File {
			return res.Items[i].File < res.Items[j].File
		}
		return res.Items[i].Line < res.Items[j].Line
	})
	res.summarize(scanned)

	s.logger.Debug(ctx, "scan complete",
		zap.String("root", root),
		zap.Int("files", scanned),
		zap.Int("items", len(res.Items)))
	return res, nil
}

// scanFile returns the items of one file. ok is false when the file was
// skipped for size or binary content.
func (s *Scanner) scanFile(path, rel string) (_ []Item, ok bool, _ error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.Size() > s.cfg.MaxFileSize {
		return nil, false, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, false, err
	}
	head = head[:n]
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, false, nil
	}

	items, err := s.ScanReader(io.MultiReader(bytes.NewReader(head), f), rel)
	return items, true, err
}

// ScanReader parses every line of r, labelling items with file.
func (s *Scanner) ScanReader(r io.Reader, file string) ([]Item, error) {
	var items []Item
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), int(s.cfg.MaxFileSize)+1)
	line := 0
	for sc.Scan() {
		line++
		if it, ok := s.parser.ParseLine(sc.Text()); ok {
			it.File = file
			it.Line = line
			items = append(items, it)
		}
	}
	return items, sc.Err()
}

// Check returns ErrMarkersFound when res holds any of the failOn types.
func Check(res *Result, failOn []string) error {
	if len(failOn) == 0 {
		return nil
	}
	if n := res.Count(failOn...); n > 0 {
		return fmt.Errorf("%w: %d %s", ErrMarkersFound, n, strings.Join(failOn, "/"))
	}
	return nil
}
