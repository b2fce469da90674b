package todos

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	res := &Result{Root: "/src", Items: []Item{
		{Type: "FIXME", Author: "alice", Message: "race", File: "a.go", Line: 3},
		{Type: "TODO", Date: "2024-01-02", Message: "docs", File: "b.go", Line: 9},
	}}
	res.summarize(5)
	return res
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(), FormatJSON, GroupByFile))

	var decoded struct {
		Root    string  `json:"root"`
		Items   []Item  `json:"items"`
		Summary Summary `json:"summary"`
		Groups  []Group `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/src", decoded.Root)
	assert.Len(t, decoded.Items, 2)
	assert.Equal(t, 5, decoded.Summary.FilesScanned)
	require.Len(t, decoded.Groups, 2)
	assert.Equal(t, "a.go", decoded.Groups[0].Key)
}

func TestRender_Markdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(), FormatMarkdown, GroupByType))
	out := buf.String()

	assert.Contains(t, out, "# TODO Report")
	assert.Contains(t, out, "**Total:** 2 in 2 of 5 files")
	assert.Contains(t, out, "| FIXME | 1 |")
	assert.Contains(t, out, "## FIXME (1)")
	assert.Contains(t, out, "- **a.go:3** race (@alice) `a.go:3`")
	assert.Contains(t, out, "docs (2024-01-02)")
}

func TestRender_MarkdownEmpty(t *testing.T) {
	res := &Result{}
	res.summarize(0)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, res, FormatMarkdown, GroupByType))
	assert.Contains(t, buf.String(), "No markers found.")
}

func TestRender_Console(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(), FormatConsole, GroupByAuthor))
	out := buf.String()
	assert.Contains(t, out, "2 markers in 2 files")
	assert.Contains(t, out, "alice (1)")
	assert.Contains(t, out, Unassigned+" (1)")
	assert.Contains(t, out, "a.go:3")
}

func TestParseFormatAndGroupBy(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatConsole, f)
	f, err = ParseFormat("MD")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)
	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	g, err := ParseGroupBy("author")
	require.NoError(t, err)
	assert.Equal(t, GroupByAuthor, g)
	_, err = ParseGroupBy("size")
	assert.Error(t, err)

	assert.ErrorIs(t, Render(&bytes.Buffer{}, sampleResult(), Format("xml"), GroupByType), ErrUnknownFormat)
}
