package navtree

import (
	"strings"

	"github.com/starford/folio/internal/models"
)

// Locker decides which paths are edit-protected. A path is locked when it
// contains any configured pattern. A nil Locker locks nothing.
type Locker struct {
	patterns []string
}

// NewLocker returns a Locker for the given substrings. Empty patterns are dropped.
func NewLocker(patterns []string) *Locker {
	l := &Locker{}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			l.patterns = append(l.patterns, p)
		}
	}
	return l
}

// IsLocked reports whether path matches the deny-list.
func (l *Locker) IsLocked(path string) bool {
	if l == nil {
		return false
	}
	for _, p := range l.patterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// Apply recomputes Locked for every entry of the tree in place.
func (l *Locker) Apply(t *models.Tree) {
	applyLocks(l, t.Entries)
}

func applyLocks(l *Locker, entries []models.Entry) {
	for i := range entries {
		entries[i].Locked = l.IsLocked(entries[i].Path)
		if entries[i].IsDir() {
			applyLocks(l, entries[i].Children)
		}
	}
}
