package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
)

const tmpPrefix = ".folio-tmp-"

// FS implements Store on the local file system for offline development.
// Each branch is a directory under root; branch names are path-escaped so
// "feature/x" becomes "feature%2Fx".
type FS struct {
	root string // absolute path

	mu sync.Mutex
}

// NewFS creates an FS store rooted at root, creating root and the
// defaultBranch directory when missing.
func NewFS(root, defaultBranch string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("remote: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("remote: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("remote: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("remote: root is not a directory: %s", abs)
	}
	f := &FS{root: abs}
	if defaultBranch != "" {
		if err := os.MkdirAll(f.branchDir(defaultBranch), 0o755); err != nil {
			return nil, fmt.Errorf("remote: create default branch: %w", err)
		}
	}
	return f, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

func (f *FS) branchDir(branch string) string {
	return filepath.Join(f.root, url.PathEscape(branch))
}

// safePath resolves rel inside the branch directory and rejects any result
// that escapes it.
func (f *FS) safePath(branch, rel string) (string, error) {
	base := f.branchDir(branch)
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("remote: invalid path: %q", rel)
	}
	abs := filepath.Join(base, cleaned)
	if !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("remote: path escapes branch root: %s", rel)
	}
	return abs, nil
}

func (f *FS) branchExists(branch string) bool {
	info, err := os.Stat(f.branchDir(branch))
	return err == nil && info.IsDir()
}

// GetFile reads path on branch.
func (f *FS) GetFile(_ context.Context, path, branch string) (File, error) {
	if !f.branchExists(branch) {
		return File{}, fmt.Errorf("remote: get %s@%s: %w: no such branch", path, branch, apperr.ErrNotFound)
	}
	abs, err := f.safePath(branch, path)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return File{}, fmt.Errorf("remote: get %s@%s: %w", path, branch, apperr.ErrNotFound)
	}
	if err != nil {
		return File{}, fmt.Errorf("remote: read %s@%s: %w", path, branch, err)
	}
	return File{Path: path, Branch: branch, Content: data, SHA: checksum.GitBlob(data)}, nil
}

// PutFile writes atomically. Like GitHub, replacing an existing file requires
// its current blob id and creating a new one requires an empty SHA.
func (f *FS) PutFile(_ context.Context, req PutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.branchExists(req.Branch) {
		return "", fmt.Errorf("remote: put %s@%s: %w: no such branch", req.Path, req.Branch, apperr.ErrNotFound)
	}
	abs, err := f.safePath(req.Branch, req.Path)
	if err != nil {
		return "", err
	}
	current := ""
	if data, err := os.ReadFile(abs); err == nil {
		current = checksum.GitBlob(data)
	}
	if current != req.SHA {
		return "", fmt.Errorf("remote: put %s@%s: %w: expected %q, have %q", req.Path, req.Branch, apperr.ErrConflict, req.SHA, current)
	}
	if err := writeAtomic(abs, req.Content); err != nil {
		return "", err
	}
	return checksum.GitBlob(req.Content), nil
}

// DeleteFile removes one file after checking its blob id, then prunes
// directories left empty.
func (f *FS) DeleteFile(_ context.Context, req DeleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.branchExists(req.Branch) {
		return fmt.Errorf("remote: delete %s@%s: %w: no such branch", req.Path, req.Branch, apperr.ErrNotFound)
	}
	abs, err := f.safePath(req.Branch, req.Path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remote: delete %s@%s: %w", req.Path, req.Branch, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remote: delete %s@%s: %w", req.Path, req.Branch, err)
	}
	if current := checksum.GitBlob(data); current != req.SHA {
		return fmt.Errorf("remote: delete %s@%s: %w: expected %q, have %q", req.Path, req.Branch, apperr.ErrConflict, req.SHA, current)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("remote: delete %s@%s: %w", req.Path, req.Branch, err)
	}
	base := f.branchDir(req.Branch)
	for dir := filepath.Dir(abs); dir != base; dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// ListDir lists the direct children of a directory on branch.
func (f *FS) ListDir(_ context.Context, path, branch string) ([]DirEntry, error) {
	if !f.branchExists(branch) {
		return nil, fmt.Errorf("remote: list %s@%s: %w: no such branch", path, branch, apperr.ErrNotFound)
	}
	abs, err := f.safePath(branch, path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("remote: list %s@%s: %w", path, branch, apperr.ErrNotFound)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("remote: list %s@%s: %w", path, branch, err)
	}
	prefix := strings.Trim(path, "/") + "/"
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		de := DirEntry{Path: prefix + e.Name(), Dir: e.IsDir()}
		if !e.IsDir() {
			data, err := os.ReadFile(filepath.Join(abs, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("remote: list %s@%s: %w", path, branch, err)
			}
			de.SHA = checksum.GitBlob(data)
		}
		out = append(out, de)
	}
	return out, nil
}

// writeAtomic writes content: tmp file, fsync, rename.
func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("remote: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("remote: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("remote: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("remote: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("remote: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("remote: rename: %w", err)
	}
	success = true
	return nil
}

// ListBranches returns the branch directories, sorted.
func (f *FS) ListBranches(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("remote: list branches: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return SortBranches(names), nil
}

// BranchHead hashes the branch's file list and blob ids.
func (f *FS) BranchHead(_ context.Context, branch string) (string, error) {
	if !f.branchExists(branch) {
		return "", fmt.Errorf("remote: head of %s: %w", branch, apperr.ErrNotFound)
	}
	base := f.branchDir(branch)
	var lines []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(base, p)
		lines = append(lines, filepath.ToSlash(rel)+" "+checksum.GitBlob(data))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("remote: head of %s: %w", branch, err)
	}
	sort.Strings(lines)
	return checksum.Sum([]byte(strings.Join(lines, "\n"))), nil
}

// CreateBranch copies the from branch directory to name.
func (f *FS) CreateBranch(_ context.Context, name, from string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.branchExists(from) {
		return fmt.Errorf("remote: create branch %s: %w: source %s", name, apperr.ErrNotFound, from)
	}
	if f.branchExists(name) {
		return fmt.Errorf("remote: create branch %s: %w", name, apperr.ErrAlreadyExists)
	}
	src, dst := f.branchDir(from), f.branchDir(name)
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, _ := filepath.Rel(src, p)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		_ = os.RemoveAll(dst)
		return fmt.Errorf("remote: create branch %s: %w", name, err)
	}
	return nil
}

// DeleteBranch removes the branch directory.
func (f *FS) DeleteBranch(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.branchExists(name) {
		return fmt.Errorf("remote: delete branch %s: %w", name, apperr.ErrNotFound)
	}
	if err := os.RemoveAll(f.branchDir(name)); err != nil {
		return fmt.Errorf("remote: delete branch %s: %w", name, err)
	}
	return nil
}

var _ Store = (*FS)(nil)
