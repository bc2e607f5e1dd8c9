package navtree

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/folio/internal/models"
)

// Less reports whether a sorts before b: directories first, then titles
// compared case-insensitively, then paths as a tie-breaker.
func Less(c *collate.Collator, a, b models.Entry) bool {
	if a.IsDir() != b.IsDir() {
		return a.IsDir()
	}
	if r := c.CompareString(a.Title, b.Title); r != 0 {
		return r < 0
	}
	return a.Path < b.Path
}

// SortEntries orders a single collection in place. Nested collections are
// left as they are.
func SortEntries(entries []models.Entry) {
	c := newCollator()
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(c, entries[i], entries[j])
	})
}

// IsOrdered reports whether a collection satisfies the ordering invariant.
func IsOrdered(entries []models.Entry) bool {
	c := newCollator()
	for i := 1; i < len(entries); i++ {
		if Less(c, entries[i], entries[i-1]) {
			return false
		}
	}
	return true
}

// Collators keep internal buffers, so each sort gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}
