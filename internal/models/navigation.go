// Package models defines the domain types for Folio.
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// EntryType discriminates navigation entries.
type EntryType string

const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
)

// Entry is one node of the navigation tree. Directories always carry a
// non-nil Children slice; files never carry one.
type Entry struct {
	Title    string    `json:"title"`
	Path     string    `json:"path"`
	Type     EntryType `json:"type"`
	Locked   bool      `json:"locked"`
	Children []Entry   `json:"children,omitempty"`
}

// NewFile returns a file entry.
func NewFile(title, path string) Entry {
	return Entry{Title: title, Path: path, Type: TypeFile}
}

// NewDirectory returns a directory entry with the given children.
func NewDirectory(title, path string, children ...Entry) Entry {
	if children == nil {
		children = []Entry{}
	}
	return Entry{Title: title, Path: path, Type: TypeDirectory, Children: children}
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Type == TypeDirectory
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	out := e
	if e.IsDir() {
		out.Children = cloneEntries(e.Children)
	} else {
		out.Children = nil
	}
	return out
}

type dirJSON struct {
	Title    string    `json:"title"`
	Path     string    `json:"path"`
	Type     EntryType `json:"type"`
	Locked   bool      `json:"locked"`
	Children []Entry   `json:"children"`
}

type fileJSON struct {
	Title  string    `json:"title"`
	Path   string    `json:"path"`
	Type   EntryType `json:"type"`
	Locked bool      `json:"locked"`
}

// MarshalJSON keeps the canonical key order and always writes "children" for
// directories, even when empty. Titles keep &, < and > literal.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.IsDir() {
		children := e.Children
		if children == nil {
			children = []Entry{}
		}
		return marshalLiteral(dirJSON{Title: e.Title, Path: e.Path, Type: e.Type, Locked: e.Locked, Children: children})
	}
	return marshalLiteral(fileJSON{Title: e.Title, Path: e.Path, Type: e.Type, Locked: e.Locked})
}

func marshalLiteral(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Tree is the root navigation document.
type Tree struct {
	Entries []Entry `json:"navigation"`
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	return Tree{Entries: cloneEntries(t.Entries)}
}

// Empty reports whether the tree has no top-level entries.
func (t Tree) Empty() bool {
	return len(t.Entries) == 0
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// BranchStructure is the synchronizer's cache entry for one branch.
type BranchStructure struct {
	Branch            string    `json:"branch"`
	Tree              Tree      `json:"tree"`
	LastFetchedAt     time.Time `json:"last_fetched_at"`
	LastRemoteFetchAt time.Time `json:"last_remote_fetch_at"`
}

// Draft is a pending structural edit for one branch.
type Draft struct {
	Branch  string    `json:"branch"`
	Tree    Tree      `json:"tree"`
	SavedAt time.Time `json:"saved_at"`
}

// PageDraft is unsaved body text for one page on one branch.
type PageDraft struct {
	Route   string    `json:"route"`
	Branch  string    `json:"branch"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"saved_at"`
}
