package todos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scanLog struct {
	mu      sync.Mutex
	results []*Result
}

func (l *scanLog) record(res *Result, err error) {
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, res)
}

func (l *scanLog) last() (*Result, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.results) == 0 {
		return nil, 0
	}
	return l.results[len(l.results)-1], len(l.results)
}

func TestWatcher_RescansOnChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "// TODO: first\n")

	s, err := NewScanner(DefaultConfig())
	require.NoError(t, err)
	w, err := NewWatcher(s, root, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	log := &scanLog{}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, log.record) }()

	require.Eventually(t, func() bool {
		_, n := log.last()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond, "initial scan")

	writeFile(t, root, "main.go", "// TODO: first\n// FIXME: second\n")
	require.Eventually(t, func() bool {
		res, _ := log.last()
		return res != nil && res.Summary.Total == 2
	}, 2*time.Second, 10*time.Millisecond, "rescan after write")

	writeFile(t, root, "pkg/new.go", "// BUG: in a new directory\n")
	require.Eventually(t, func() bool {
		res, _ := log.last()
		return res != nil && res.Summary.Total == 3
	}, 2*time.Second, 10*time.Millisecond, "rescan after create")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_IgnoresUnscannedFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewScanner(DefaultConfig())
	require.NoError(t, err)
	w, err := NewWatcher(s, root, time.Millisecond)
	require.NoError(t, err)
	defer w.watcher.Close()

	writeFile(t, root, "notes.bin", "x")
	writeFile(t, root, "a.go", "x")
	assert.False(t, w.relevant(fsnotifyEvent(root+"/notes.bin")))
	assert.True(t, w.relevant(fsnotifyEvent(root+"/a.go")))
}

func fsnotifyEvent(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}
