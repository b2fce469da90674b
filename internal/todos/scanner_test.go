package todos

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\n// TODO(alice): wire config\nfunc main() {} // FIXME: exit code\n")
	writeFile(t, root, "web/app.ts", "const a = 1;\n/* BUG [2024-05-01]: off by one */\n")
	writeFile(t, root, "scripts/run.sh", "#!/bin/sh\n# NOTE: needs bash 5\n")
	writeFile(t, root, "README.txt", "TODO: not a scanned extension\n")
	writeFile(t, root, "node_modules/lib/index.js", "// TODO: third party\n")
	writeFile(t, root, "vendor/x/x.go", "// TODO: vendored\n")
	writeFile(t, root, "gen/api.go", "// TODO: generated\n")
	writeFile(t, root, "fixtures/sample.go", "// TODO: fixture\n")
	writeFile(t, root, ".gitignore", "gen/\n")
	return root
}

func TestScanner_Scan(t *testing.T) {
	root := newTree(t)
	cfg := DefaultConfig()
	cfg.Exclude = []string{"fixtures/"}
	s, err := NewScanner(cfg)
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	want := []Item{
		{Type: "TODO", Author: "alice", Message: "wire config", File: "main.go", Line: 3},
		{Type: "FIXME", Message: "exit code", File: "main.go", Line: 4},
		{Type: "NOTE", Message: "needs bash 5", File: "scripts/run.sh", Line: 2},
		{Type: "BUG", Date: "2024-05-01", Message: "off by one", File: "web/app.ts", Line: 2},
	}
	if diff := cmp.Diff(want, res.Items); diff != "" {
		t.Errorf("Scan() items mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 4, res.Summary.Total)
	assert.Equal(t, 3, res.Summary.FilesScanned)
	assert.Equal(t, 3, res.Summary.FilesWithHit)
	assert.Equal(t, map[string]int{"TODO": 1, "FIXME": 1, "NOTE": 1, "BUG": 1}, res.Summary.ByType)
}

func TestScanner_SkipsLargeAndBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.go", "// TODO: too big\n"+strings.Repeat("x", 200))
	writeFile(t, root, "blob.go", "// TODO: binary\x00\x01")
	writeFile(t, root, "ok.go", "// TODO: fine\n")

	cfg := DefaultConfig()
	cfg.MaxFileSize = 100
	s, err := NewScanner(cfg)
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "ok.go", res.Items[0].File)
	assert.Equal(t, 1, res.Summary.FilesScanned)
}

func TestScanner_ProjectConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ConfigFile, `
markers = ["TODO", "REVIEW"]
extensions = ["py"]
exclude = ["legacy/**"]
`)
	writeFile(t, root, "app.py", "# REVIEW: naming\n# FIXME: not configured\n")
	writeFile(t, root, "legacy/old.py", "# TODO: ignored\n")
	writeFile(t, root, "main.go", "// TODO: wrong extension\n")

	cfg, err := LoadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, []string{".py"}, cfg.Extensions)

	s, err := NewScanner(cfg)
	require.NoError(t, err)
	res, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "REVIEW", res.Items[0].Type)
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, DefaultMarkers, cfg.Markers)
		assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	})

	t.Run("invalid toml", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, ConfigFile, "markers = [")
		_, err := LoadConfig(root)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("invalid marker", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, ConfigFile, `markers = ["TO DO"]`)
		_, err := LoadConfig(root)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestScanner_ScanErrors(t *testing.T) {
	s, err := NewScanner(DefaultConfig())
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	root := t.TempDir()
	writeFile(t, root, "a.go", "")
	_, err = s.Scan(context.Background(), filepath.Join(root, "a.go"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_GroupsAndCheck(t *testing.T) {
	res := &Result{Items: []Item{
		{Type: "TODO", File: "b.go", Author: "zed"},
		{Type: "FIXME", File: "a.go"},
		{Type: "TODO", File: "a.go", Author: "amy"},
	}}

	byType := res.Groups(GroupByType)
	require.Len(t, byType, 2)
	assert.Equal(t, "FIXME", byType[0].Key)
	assert.Len(t, byType[1].Items, 2)

	byFile := res.Groups(GroupByFile)
	assert.Equal(t, "a.go", byFile[0].Key)
	assert.Len(t, byFile[0].Items, 2)

	byAuthor := res.Groups(GroupByAuthor)
	require.Len(t, byAuthor, 3)
	assert.Equal(t, []string{"amy", "zed", Unassigned}, []string{byAuthor[0].Key, byAuthor[1].Key, byAuthor[2].Key})

	assert.NoError(t, Check(res, nil))
	assert.NoError(t, Check(res, []string{"BUG"}))
	err := Check(res, ParseList("FIXME, BUG"))
	assert.ErrorIs(t, err, ErrMarkersFound)
	assert.Contains(t, err.Error(), "1 FIXME/BUG")
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"FIXME", "BUG"}, ParseList(" FIXME,,BUG "))
	assert.Nil(t, ParseList(""))
}
