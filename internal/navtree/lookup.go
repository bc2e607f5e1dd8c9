package navtree

import (
	"strings"

	"github.com/starford/folio/internal/models"
)

// Find returns the entry at path.
func Find(t models.Tree, path string) (models.Entry, bool) {
	ip, ok := Locate(t.Entries, path)
	if !ok {
		return models.Entry{}, false
	}
	return entryAt(&t, ip).Clone(), true
}

// FindParent returns the directory that holds path. Top-level entries have
// no parent.
func FindParent(t models.Tree, path string) (models.Entry, bool) {
	ip, ok := Locate(t.Entries, path)
	if !ok || len(ip) < 2 {
		return models.Entry{}, false
	}
	return entryAt(&t, ip[:len(ip)-1]).Clone(), true
}

// Breadcrumbs returns the entries for every prefix of path that exists in
// the tree, outermost first.
func Breadcrumbs(t models.Tree, path string) []models.Entry {
	var out []models.Entry
	cur := ""
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		cur += "/" + part
		if e, ok := Find(t, cur); ok {
			if e.IsDir() {
				e.Children = []models.Entry{}
			}
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries in the tree.
func Count(t models.Tree) int {
	return countEntries(t.Entries)
}

func countEntries(entries []models.Entry) int {
	n := len(entries)
	for _, e := range entries {
		if e.IsDir() {
			n += countEntries(e.Children)
		}
	}
	return n
}
