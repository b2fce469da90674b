package todos

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/firmd/internal/ignore"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a re-scan.
const DefaultDebounce = 300 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher re-scans a tree after source files change.
type Watcher struct {
	scanner  *Scanner
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	matcher  *ignore.Matcher
}

// NewWatcher creates a watcher for root. A non-positive debounce selects
// DefaultDebounce.
func NewWatcher(s *Scanner, root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	m, err := s.matcher(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		scanner:  s,
		root:     root,
		debounce: debounce,
		watcher:  fw,
		matcher:  m,
	}, nil
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); rel != "." && w.matcher.Match(rel, true) {
			return fs.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// relevant reports whether an event should trigger a re-scan.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return false
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		return ev.Has(fsnotify.Create) && !w.matcher.Match(rel, true)
	}
	return w.scanner.Scannable(ev.Name) && !w.matcher.Match(rel, false)
}

// Run scans once, then re-scans after each burst of changes until ctx is
// done. Every scan result is passed to onScan. The underlying watcher is
// closed when Run returns.
func (w *Watcher) Run(ctx context.Context, onScan func(*Result, error)) error {
	defer w.watcher.Close()

	if err := w.addTree(w.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}
	onScan(w.scanner.Scan(ctx, w.root))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.scanner.logger.Warn(ctx, "watching new directory", zap.String("path", ev.Name), zap.Error(err))
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if ctx.Err() != nil {
				return nil
			}
			onScan(w.scanner.Scan(ctx, w.root))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.scanner.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}
