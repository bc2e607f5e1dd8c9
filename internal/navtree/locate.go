package navtree

import "github.com/starford/folio/internal/models"

// RootPath addresses the top-level collection.
const RootPath = "/"

// IndexPath is the sequence of child indices leading from the root
// collection to an entry.
type IndexPath []int

// Locate finds path in entries depth-first and returns its index path.
func Locate(entries []models.Entry, path string) (IndexPath, bool) {
	for i, e := range entries {
		if e.Path == path {
			return IndexPath{i}, true
		}
		if e.IsDir() {
			if sub, ok := Locate(e.Children, path); ok {
				return append(IndexPath{i}, sub...), true
			}
		}
	}
	return nil, false
}

// entryAt returns a pointer into the working copy for a non-empty index path.
func entryAt(t *models.Tree, ip IndexPath) *models.Entry {
	coll := &t.Entries
	var e *models.Entry
	for _, i := range ip {
		e = &(*coll)[i]
		coll = &e.Children
	}
	return e
}

// collectionAt returns the collection addressed by a parent index path; an
// empty index path is the root collection.
func collectionAt(t *models.Tree, parent IndexPath) *[]models.Entry {
	if len(parent) == 0 {
		return &t.Entries
	}
	return &entryAt(t, parent).Children
}
