package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/remote"
)

// FakeStore is an in-memory remote.Store with call counters and fault
// injection.
type FakeStore struct {
	mu       sync.Mutex
	files    map[string]map[string][]byte // branch -> path -> content
	hidden   map[string]int               // branch -> ListBranches calls before it shows up
	ghosts   map[string]int               // deleted branch -> calls it keeps showing up
	getCalls map[string]int
	puts     []remote.PutRequest
	deletes  []remote.DeleteRequest
	pulls    []remote.PullRequest
	commits  map[string][]remote.Commit

	// GetErr, PutErr and ListErr, when set, are returned by the matching call.
	GetErr  error
	PutErr  error
	ListErr error
	// Block, when non-nil, is received from at the start of every GetFile.
	Block chan struct{}
}

// NewFakeStore returns a store holding the given empty branches.
func NewFakeStore(branches ...string) *FakeStore {
	s := &FakeStore{
		files:    map[string]map[string][]byte{},
		hidden:   map[string]int{},
		ghosts:   map[string]int{},
		getCalls: map[string]int{},
		commits:  map[string][]remote.Commit{},
	}
	for _, b := range branches {
		s.files[b] = map[string][]byte{}
	}
	return s
}

// Seed writes a file directly, bypassing SHA checks.
func (s *FakeStore) Seed(branch, path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files[branch] == nil {
		s.files[branch] = map[string][]byte{}
	}
	s.files[branch][path] = append([]byte(nil), content...)
}

// Content returns the stored bytes for path.
func (s *FakeStore) Content(branch, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[branch][path]
	return data, ok
}

// GetCalls returns how many times GetFile was called for path on branch.
func (s *FakeStore) GetCalls(branch, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[branch+":"+path]
}

// Puts returns every PutFile request received, including failed ones.
func (s *FakeStore) Puts() []remote.PutRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.PutRequest(nil), s.puts...)
}

// Deletes returns every DeleteFile request received.
func (s *FakeStore) Deletes() []remote.DeleteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.DeleteRequest(nil), s.deletes...)
}

// SeedCommits sets the history of branch, newest first.
func (s *FakeStore) SeedCommits(branch string, commits ...remote.Commit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[branch] = append([]remote.Commit(nil), commits...)
}

// SeedPullRequest adds an open pull request.
func (s *FakeStore) SeedPullRequest(pr remote.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls = append(s.pulls, pr)
}

// HideBranchFor makes a newly created branch invisible to the next n
// ListBranches calls.
func (s *FakeStore) HideBranchFor(branch string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[branch] = n
}

// KeepDeletedFor keeps a deleted branch listed for the next n calls.
func (s *FakeStore) KeepDeletedFor(branch string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ghosts[branch] = n
}

func (s *FakeStore) GetFile(_ context.Context, path, branch string) (remote.File, error) {
	if s.Block != nil {
		<-s.Block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls[branch+":"+path]++
	if s.GetErr != nil {
		return remote.File{}, s.GetErr
	}
	files, ok := s.files[branch]
	if !ok {
		return remote.File{}, fmt.Errorf("fake: branch %s: %w", branch, apperr.ErrNotFound)
	}
	data, ok := files[path]
	if !ok {
		return remote.File{}, fmt.Errorf("fake: %s: %w", path, apperr.ErrNotFound)
	}
	return remote.File{Path: path, Branch: branch, Content: append([]byte(nil), data...), SHA: checksum.GitBlob(data)}, nil
}

func (s *FakeStore) PutFile(_ context.Context, req remote.PutRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, req)
	if s.PutErr != nil {
		return "", s.PutErr
	}
	files, ok := s.files[req.Branch]
	if !ok {
		return "", fmt.Errorf("fake: branch %s: %w", req.Branch, apperr.ErrNotFound)
	}
	current := ""
	if data, ok := files[req.Path]; ok {
		current = checksum.GitBlob(data)
	}
	if current != req.SHA {
		return "", fmt.Errorf("fake: %s: %w", req.Path, apperr.ErrConflict)
	}
	files[req.Path] = append([]byte(nil), req.Content...)
	return checksum.GitBlob(req.Content), nil
}

func (s *FakeStore) ListBranches(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var names []string
	for b := range s.files {
		if s.hidden[b] > 0 {
			s.hidden[b]--
			continue
		}
		names = append(names, b)
	}
	for b, n := range s.ghosts {
		if n > 0 {
			s.ghosts[b]--
			names = append(names, b)
		}
	}
	return remote.SortBranches(names), nil
}

func (s *FakeStore) BranchHead(_ context.Context, branch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[branch]; !ok {
		return "", fmt.Errorf("fake: branch %s: %w", branch, apperr.ErrNotFound)
	}
	return "head-" + branch, nil
}

func (s *FakeStore) CreateBranch(_ context.Context, name, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.files[from]
	if !ok {
		return fmt.Errorf("fake: branch %s: %w", from, apperr.ErrNotFound)
	}
	if _, ok := s.files[name]; ok {
		return fmt.Errorf("fake: branch %s: %w", name, apperr.ErrAlreadyExists)
	}
	cp := make(map[string][]byte, len(src))
	for p, d := range src {
		cp[p] = append([]byte(nil), d...)
	}
	s.files[name] = cp
	return nil
}

func (s *FakeStore) DeleteBranch(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return fmt.Errorf("fake: branch %s: %w", name, apperr.ErrNotFound)
	}
	delete(s.files, name)
	return nil
}

func (s *FakeStore) DeleteFile(_ context.Context, req remote.DeleteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, req)
	files, ok := s.files[req.Branch]
	if !ok {
		return fmt.Errorf("fake: branch %s: %w", req.Branch, apperr.ErrNotFound)
	}
	data, ok := files[req.Path]
	if !ok {
		return fmt.Errorf("fake: %s: %w", req.Path, apperr.ErrNotFound)
	}
	if checksum.GitBlob(data) != req.SHA {
		return fmt.Errorf("fake: %s: %w", req.Path, apperr.ErrConflict)
	}
	delete(files, req.Path)
	return nil
}

func (s *FakeStore) ListDir(_ context.Context, path, branch string) ([]remote.DirEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.files[branch]
	if !ok {
		return nil, fmt.Errorf("fake: branch %s: %w", branch, apperr.ErrNotFound)
	}
	prefix := strings.Trim(path, "/") + "/"
	seen := map[string]bool{}
	var out []remote.DirEntry
	for p, data := range files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		de := remote.DirEntry{Path: prefix + name, Dir: isDir}
		if !isDir {
			de.SHA = checksum.GitBlob(data)
		}
		out = append(out, de)
	}
	if out == nil {
		return nil, fmt.Errorf("fake: %s: %w", path, apperr.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *FakeStore) ListPullRequests(_ context.Context) ([]remote.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return append([]remote.PullRequest(nil), s.pulls...), nil
}

func (s *FakeStore) CreatePullRequest(_ context.Context, pr remote.NewPullRequest) (remote.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pulls {
		if p.Head == pr.Head && p.Base == pr.Base {
			return remote.PullRequest{}, fmt.Errorf("fake: pull request %s into %s: %w", pr.Head, pr.Base, apperr.ErrAlreadyExists)
		}
	}
	created := remote.PullRequest{
		Number:    len(s.pulls) + 1,
		Title:     pr.Title,
		Body:      pr.Body,
		Head:      pr.Head,
		Base:      pr.Base,
		Author:    "fake",
		URL:       fmt.Sprintf("https://example.test/pull/%d", len(s.pulls)+1),
		State:     "open",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.pulls = append(s.pulls, created)
	return created, nil
}

func (s *FakeStore) ListCommits(_ context.Context, branch, path string, limit int) ([]remote.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[branch]; !ok {
		return nil, fmt.Errorf("fake: branch %s: %w", branch, apperr.ErrNotFound)
	}
	out := s.commits[branch]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]remote.Commit(nil), out...), nil
}

var (
	_ remote.Store   = (*FakeStore)(nil)
	_ remote.History = (*FakeStore)(nil)
)
