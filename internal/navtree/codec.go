// Package navtree implements the navigation tree codec and the pure
// structural edits applied to it.
package navtree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

type rawEntry struct {
	Title    string            `json:"title"`
	Path     string            `json:"path"`
	Type     models.EntryType  `json:"type"`
	Children []json.RawMessage `json:"children"`
}

// Parse decodes a navigation blob. The top-level object must carry a
// "navigation" array. Locked flags are recomputed with lk; the stored values
// are ignored.
func Parse(data []byte, lk *Locker) (models.Tree, error) {
	var doc struct {
		Navigation *[]json.RawMessage `json:"navigation"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return models.Tree{}, fmt.Errorf("%w: %v", apperr.ErrMalformedNavigation, err)
	}
	if doc.Navigation == nil {
		return models.Tree{}, fmt.Errorf("%w: missing navigation array", apperr.ErrMalformedNavigation)
	}
	entries, err := parseEntries(*doc.Navigation, lk)
	if err != nil {
		return models.Tree{}, err
	}
	return models.Tree{Entries: entries}, nil
}

func parseEntries(raw []json.RawMessage, lk *Locker) ([]models.Entry, error) {
	out := make([]models.Entry, 0, len(raw))
	for i, msg := range raw {
		var r rawEntry
		if err := json.Unmarshal(msg, &r); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", apperr.ErrMalformedNavigation, i, err)
		}
		switch r.Type {
		case models.TypeFile:
			e := models.NewFile(r.Title, r.Path)
			e.Locked = lk.IsLocked(r.Path)
			out = append(out, e)
		case models.TypeDirectory:
			children, err := parseEntries(r.Children, lk)
			if err != nil {
				return nil, err
			}
			e := models.NewDirectory(r.Title, r.Path, children...)
			e.Locked = lk.IsLocked(r.Path)
			out = append(out, e)
		default:
			return nil, fmt.Errorf("%w: entry %q has unknown type %q", apperr.ErrMalformedNavigation, r.Path, r.Type)
		}
	}
	return out, nil
}

// Marshal encodes the tree as the canonical navigation blob: a single
// "navigation" key, stable field order, two-space indentation, no HTML
// escaping.
func Marshal(t models.Tree) ([]byte, error) {
	entries := t.Entries
	if entries == nil {
		entries = []models.Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(models.Tree{Entries: entries}); err != nil {
		return nil, fmt.Errorf("navtree: marshal: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
