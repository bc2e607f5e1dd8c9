// Package remote talks to the repository that holds page content and the
// navigation blob: GitHub in production, a local directory in development.
package remote

import (
	"context"
	"sort"
	"time"
)

// File is one blob read from a branch.
type File struct {
	Path    string
	Branch  string
	Content []byte
	// SHA is the git blob id of Content.
	SHA string
}

// PutRequest describes a single-file commit.
type PutRequest struct {
	Path    string
	Branch  string
	Content []byte
	// SHA is the blob id the caller expects to replace. Empty means the file
	// must not exist yet.
	SHA     string
	Message string
}

// DeleteRequest describes a single-file removal. SHA must be the file's
// current blob id.
type DeleteRequest struct {
	Path    string
	Branch  string
	SHA     string
	Message string
}

// DirEntry is one child of a listed directory.
type DirEntry struct {
	Path string
	SHA  string
	Dir  bool
}

// Store is the remote content store. Implementations return
// apperr.ErrNotFound for missing files and branches and apperr.ErrConflict
// when a PutRequest.SHA no longer matches.
type Store interface {
	GetFile(ctx context.Context, path, branch string) (File, error)
	// PutFile commits Content and returns the new blob id.
	PutFile(ctx context.Context, req PutRequest) (string, error)
	DeleteFile(ctx context.Context, req DeleteRequest) error
	// ListDir returns the direct children of a directory. A missing path or
	// a path naming a file is apperr.ErrNotFound.
	ListDir(ctx context.Context, path, branch string) ([]DirEntry, error)
	ListBranches(ctx context.Context) ([]string, error)
	// BranchHead returns an opaque revision id for the branch tip.
	BranchHead(ctx context.Context, branch string) (string, error)
	// CreateBranch creates name at the current head of from.
	CreateBranch(ctx context.Context, name, from string) error
	DeleteBranch(ctx context.Context, name string) error
}

// PullRequest is an open review request between two branches.
type PullRequest struct {
	Number         int       `json:"number"`
	Title          string    `json:"title"`
	Body           string    `json:"body,omitempty"`
	Head           string    `json:"head"`
	Base           string    `json:"base"`
	Author         string    `json:"author"`
	AuthorAvatar   string    `json:"author_avatar,omitempty"`
	URL            string    `json:"url"`
	State          string    `json:"state"`
	Mergeable      *bool     `json:"mergeable"`
	MergeableState string    `json:"mergeable_state,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPullRequest asks to merge Head into Base.
type NewPullRequest struct {
	Base  string
	Head  string
	Title string
	Body  string
}

// Commit is one entry of a branch history.
type Commit struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url,omitempty"`
}

// History is implemented by stores backed by a hosted git repository.
type History interface {
	// ListPullRequests returns the open pull requests with merge status.
	ListPullRequests(ctx context.Context) ([]PullRequest, error)
	CreatePullRequest(ctx context.Context, pr NewPullRequest) (PullRequest, error)
	// ListCommits returns up to limit commits reachable from branch, newest
	// first. A non-empty path keeps only commits touching it.
	ListCommits(ctx context.Context, branch, path string, limit int) ([]Commit, error)
}

// SortBranches sorts names and drops duplicates.
func SortBranches(names []string) []string {
	sort.Strings(names)
	out := names[:0]
	for i, n := range names {
		if i > 0 && n == names[i-1] {
			continue
		}
		out = append(out, n)
	}
	return out
}
