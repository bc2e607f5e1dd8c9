package branches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/remote"
)

// DefaultCommitLimit is how many commits Commits returns when no limit is
// given.
const DefaultCommitLimit = 10

// SupportsHistory reports whether pull requests and commit history are
// available.
func (m *Manager) SupportsHistory() bool {
	return m.history != nil
}

// PullRequests returns the open pull requests.
func (m *Manager) PullRequests(ctx context.Context) ([]remote.PullRequest, error) {
	if m.history == nil {
		return nil, fmt.Errorf("branches: pull requests: %w", apperr.ErrUnsupported)
	}
	prs, err := m.history.ListPullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("branches: pull requests: %w", err)
	}
	return prs, nil
}

// OpenPullRequest asks to merge pr.Head into pr.Base. Both branches must
// exist.
func (m *Manager) OpenPullRequest(ctx context.Context, pr remote.NewPullRequest) (remote.PullRequest, error) {
	if m.history == nil {
		return remote.PullRequest{}, fmt.Errorf("branches: open pull request: %w", apperr.ErrUnsupported)
	}
	pr.Title = strings.TrimSpace(pr.Title)
	if pr.Title == "" {
		return remote.PullRequest{}, fmt.Errorf("branches: open pull request: %w: empty title", apperr.ErrInvalidName)
	}
	if pr.Base == pr.Head {
		return remote.PullRequest{}, fmt.Errorf("branches: open pull request: %w: %s into itself", apperr.ErrInvalidName, pr.Head)
	}
	for _, b := range []string{pr.Base, pr.Head} {
		if _, err := m.store.BranchHead(ctx, b); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return remote.PullRequest{}, fmt.Errorf("branches: open pull request: branch %s does not exist: %w", b, apperr.ErrNotFound)
			}
			return remote.PullRequest{}, fmt.Errorf("branches: open pull request: %w", err)
		}
	}

	created, err := m.history.CreatePullRequest(ctx, pr)
	if err != nil {
		return remote.PullRequest{}, fmt.Errorf("branches: open pull request: %w", err)
	}
	m.log.Info("branches: pull request opened",
		slog.Int("number", created.Number),
		slog.String("head", pr.Head),
		slog.String("base", pr.Base))
	return created, nil
}

// Commits returns recent commits on branch, optionally limited to path.
func (m *Manager) Commits(ctx context.Context, branch, path string, limit int) ([]remote.Commit, error) {
	if m.history == nil {
		return nil, fmt.Errorf("branches: commits: %w", apperr.ErrUnsupported)
	}
	if limit <= 0 {
		limit = DefaultCommitLimit
	}
	commits, err := m.history.ListCommits(ctx, branch, path, limit)
	if err != nil {
		return nil, fmt.Errorf("branches: commits of %s: %w", branch, err)
	}
	return commits, nil
}
