// Package todos scans source trees for marker comments such as TODO and
// FIXME and reports them grouped by type, file or author.
package todos

import (
	"sort"
	"strings"
)

// Item is one marker comment.
type Item struct {
	Type    string `json:"type"`
	Author  string `json:"author,omitempty"`
	Date    string `json:"date,omitempty"`
	Message string `json:"message"`
	File    string `json:"file"`
	Line    int    `json:"line"`
}

// Summary counts a scan's items.
type Summary struct {
	Total        int            `json:"total"`
	ByType       map[string]int `json:"by_type"`
	FilesScanned int            `json:"files_scanned"`
	FilesWithHit int            `json:"files_with_items"`
}

// Result is the outcome of a scan. Items are ordered by file then line.
type Result struct {
	Root    string  `json:"root"`
	Items   []Item  `json:"items"`
	Summary Summary `json:"summary"`
}

// Group is a labelled set of items.
type Group struct {
	Key   string `json:"key"`
	Items []Item `json:"items"`
}

// GroupBy selects how items are grouped.
type GroupBy string

const (
	GroupByType   GroupBy = "type"
	GroupByFile   GroupBy = "file"
	GroupByAuthor GroupBy = "author"
)

// Unassigned labels items without an author.
const Unassigned = "unassigned"

// Groups splits the items by the given key. Groups are sorted by key, with
// Unassigned last when grouping by author.
func (r *Result) Groups(by GroupBy) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, it := range r.Items {
		var key string
		switch by {
		case GroupByFile:
			key = it.File
		case GroupByAuthor:
			key = it.Author
			if key == "" {
				key = Unassigned
			}
		default:
			key = it.Type
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Items = append(groups[i].Items, it)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if by == GroupByAuthor {
			if groups[i].Key == Unassigned {
				return false
			}
			if groups[j].Key == Unassigned {
				return true
			}
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// Count returns how many items carry any of the given types.
func (r *Result) Count(types ...string) int {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	n := 0
	for _, it := range r.Items {
		if want[it.Type] {
			n++
		}
	}
	return n
}

// ParseList splits a comma separated marker list such as "FIXME,BUG".
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *Result) summarize(filesScanned int) {
	r.Summary = Summary{
		Total:        len(r.Items),
		ByType:       make(map[string]int),
		FilesScanned: filesScanned,
	}
	files := make(map[string]bool)
	for _, it := range r.Items {
		r.Summary.ByType[it.Type]++
		files[it.File] = true
	}
	r.Summary.FilesWithHit = len(files)
}
