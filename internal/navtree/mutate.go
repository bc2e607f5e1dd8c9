package navtree

import (
	"fmt"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

// Outcome describes what a move did.
type Outcome int

const (
	Moved Outcome = iota
	AlreadyFirst
	AlreadyLast
	// Unchanged means the move would have broken the directories-before-files
	// invariant, so the entry stayed where it was.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case AlreadyFirst:
		return "already first"
	case AlreadyLast:
		return "already last"
	case Unchanged:
		return "unchanged"
	}
	return "unknown"
}

// InsertFile adds a file entry under parentPath and returns the new tree.
func InsertFile(t models.Tree, parentPath, title string) (models.Tree, models.Entry, error) {
	return insert(t, parentPath, title, models.TypeFile)
}

// InsertDirectory adds an empty directory entry under parentPath.
func InsertDirectory(t models.Tree, parentPath, title string) (models.Tree, models.Entry, error) {
	return insert(t, parentPath, title, models.TypeDirectory)
}

func insert(t models.Tree, parentPath, title string, typ models.EntryType) (models.Tree, models.Entry, error) {
	slug := Slugify(title)
	if slug == "" {
		return t, models.Entry{}, fmt.Errorf("%w: %q yields an empty path segment", apperr.ErrInvalidName, title)
	}
	path := JoinPath(parentPath, slug)
	if _, ok := Locate(t.Entries, path); ok {
		return t, models.Entry{}, fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, path)
	}

	var entry models.Entry
	if typ == models.TypeDirectory {
		entry = models.NewDirectory(title, path)
	} else {
		entry = models.NewFile(title, path)
	}

	work := t.Clone()
	var coll *[]models.Entry
	if parentPath == RootPath || parentPath == "" {
		coll = &work.Entries
	} else {
		ip, ok := Locate(work.Entries, parentPath)
		if !ok {
			return t, models.Entry{}, fmt.Errorf("%w: %s", apperr.ErrParentNotFound, parentPath)
		}
		parent := entryAt(&work, ip)
		if !parent.IsDir() {
			return t, models.Entry{}, fmt.Errorf("%w: %s is a file", apperr.ErrParentNotFound, parentPath)
		}
		coll = &parent.Children
	}
	*coll = append(*coll, entry)
	SortEntries(*coll)
	return work, entry, nil
}

// MoveUp moves the entry at path one position towards the front of its
// collection.
func MoveUp(t models.Tree, path string) (models.Tree, Outcome, error) {
	ip, ok := Locate(t.Entries, path)
	if !ok {
		return t, Unchanged, fmt.Errorf("%w: %s", apperr.ErrEntryNotFound, path)
	}
	idx := ip[len(ip)-1]
	if idx == 0 {
		return t, AlreadyFirst, nil
	}

	work := t.Clone()
	coll := collectionAt(&work, ip[:len(ip)-1])
	items := *coll
	moving, above := items[idx], items[idx-1]

	if moving.Type == above.Type || moving.IsDir() {
		items[idx], items[idx-1] = above, moving
		return work, Moved, nil
	}

	// A file may not pass a directory: place it right after the leading
	// directory run instead.
	rest := append(items[:idx:idx], items[idx+1:]...)
	at := 0
	for at < len(rest) && rest[at].IsDir() {
		at++
	}
	*coll = insertAt(rest, at, moving)
	if at == idx {
		return t, Unchanged, nil
	}
	return work, Moved, nil
}

// MoveDown moves the entry at path one position towards the end of its
// collection.
func MoveDown(t models.Tree, path string) (models.Tree, Outcome, error) {
	ip, ok := Locate(t.Entries, path)
	if !ok {
		return t, Unchanged, fmt.Errorf("%w: %s", apperr.ErrEntryNotFound, path)
	}
	idx := ip[len(ip)-1]

	work := t.Clone()
	coll := collectionAt(&work, ip[:len(ip)-1])
	items := *coll
	if idx == len(items)-1 {
		return t, AlreadyLast, nil
	}
	moving, below := items[idx], items[idx+1]

	if moving.Type == below.Type || !moving.IsDir() {
		items[idx], items[idx+1] = below, moving
		return work, Moved, nil
	}

	// A directory may not pass a file: place it right before the first file.
	rest := append(items[:idx:idx], items[idx+1:]...)
	at := 0
	for at < len(rest) && rest[at].IsDir() {
		at++
	}
	*coll = insertAt(rest, at, moving)
	if at == idx {
		return t, Unchanged, nil
	}
	return work, Moved, nil
}

func insertAt(items []models.Entry, at int, e models.Entry) []models.Entry {
	out := make([]models.Entry, 0, len(items)+1)
	out = append(out, items[:at]...)
	out = append(out, e)
	return append(out, items[at:]...)
}
