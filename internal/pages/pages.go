// Package pages reads and writes page Markdown on a branch, serving this
// process's own recent writes until the remote's read path catches up.
package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/contentcache"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/navtree"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/remote"
)

// DefaultPropagationWindow is how long a local write is trusted over the
// remote read path.
const DefaultPropagationWindow = 6 * time.Minute

// Page is the full representation of a page.
type Page struct {
	Route       string           `json:"route"`
	RepoPath    string           `json:"repo_path"`
	Branch      string           `json:"branch"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Content     string           `json:"content"`
	SHA         string           `json:"sha"`
	Tags        []string         `json:"tags"`
	Headings    []parser.Heading `json:"headings"`
	Images      []string         `json:"images"`
	Links       []string         `json:"links"`
	Frontmatter map[string]any   `json:"frontmatter,omitempty"`
	// Source is "commit" when served from this process's last write,
	// "remote" otherwise.
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	// Draft is unsaved body text for this page, if any.
	Draft *models.PageDraft `json:"draft,omitempty"`
}

// Service coordinates the remote store and the content cache for pages.
type Service struct {
	store       remote.Store
	cache       *contentcache.Cache
	clk         clock.Clock
	contentRoot string
	window      time.Duration
	log         *slog.Logger
}

// NewService creates a page service. Routes map to
// <contentRoot><route>.md in the repository.
func NewService(store remote.Store, cache *contentcache.Cache, clk clock.Clock, contentRoot string, window time.Duration, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if window <= 0 {
		window = DefaultPropagationWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:       store,
		cache:       cache,
		clk:         clk,
		contentRoot: strings.Trim(contentRoot, "/"),
		window:      window,
		log:         log,
	}
}

// RepoPath maps a canonical route to the Markdown file that backs it.
func (s *Service) RepoPath(route string) string {
	return s.join(strings.Trim(route, "/") + ".md")
}

// DirKeepPath maps a directory route to the placeholder that keeps it in git.
func (s *Service) DirKeepPath(route string) string {
	return s.join(strings.Trim(route, "/") + "/.gitkeep")
}

// Route maps a repository file path back to its canonical route.
func (s *Service) Route(repoPath string) string {
	return navtree.CanonicalPath(repoPath, s.contentRoot)
}

func (s *Service) join(rel string) string {
	if s.contentRoot == "" {
		return rel
	}
	return s.contentRoot + "/" + rel
}

// Get returns the page at route on branch.
func (s *Service) Get(ctx context.Context, route, branch string) (*Page, error) {
	if strings.Trim(route, "/") == "" {
		return nil, fmt.Errorf("pages: %w: empty route", apperr.ErrInvalidName)
	}
	path := s.RepoPath(route)
	if cm, ok := s.cache.Committed(path, branch); ok && s.clk.Since(cm.At) < s.window {
		return s.build(route, path, branch, cm.Content, cm.SHA, "commit", cm.At)
	}
	e, _, err := s.cache.Fetch(ctx, path, branch)
	if err != nil {
		return nil, fmt.Errorf("pages: get %s@%s: %w", route, branch, err)
	}
	return s.build(route, path, branch, e.Content, e.SHA, "remote", e.LastFetched)
}

// Save writes content to the page at route. The expected base hash is, in
// order: ifMatch, this process's last commit, the remote's current blob.
// A conflict forgets the recorded commit so the next attempt starts fresh.
func (s *Service) Save(ctx context.Context, route, branch string, content []byte, ifMatch string) (page *Page, err error) {
	defer func() { metrics.RecordCommit("page", err) }()
	if strings.Trim(route, "/") == "" {
		return nil, fmt.Errorf("pages: %w: empty route", apperr.ErrInvalidName)
	}
	path := s.RepoPath(route)

	base := ifMatch
	if base == "" {
		if cm, ok := s.cache.Committed(path, branch); ok {
			base = cm.SHA
		}
	}
	if base == "" {
		f, err := s.store.GetFile(ctx, path, branch)
		switch {
		case err == nil:
			base = f.SHA
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, fmt.Errorf("pages: save %s@%s: %w", route, branch, err)
		}
	}

	sha, err := s.store.PutFile(ctx, remote.PutRequest{
		Path:    path,
		Branch:  branch,
		Content: content,
		SHA:     base,
		Message: "Update " + path,
	})
	if errors.Is(err, apperr.ErrConflict) {
		s.cache.ClearCommit(path, branch)
		s.log.Warn("pages: write conflict", slog.String("path", path), slog.String("branch", branch))
		return nil, fmt.Errorf("pages: save %s@%s: %w", route, branch, err)
	}
	if err != nil {
		return nil, fmt.Errorf("pages: save %s@%s: %w", route, branch, err)
	}

	s.cache.RecordCommit(path, branch, content, sha)
	s.log.Info("pages: saved", slog.String("path", path), slog.String("branch", branch), slog.String("sha", sha))
	return s.build(route, path, branch, content, sha, "commit", s.clk.Now())
}

// CreatePlaceholder creates an empty backing file for a new navigation
// entry: <route>.md for files, <route>/.gitkeep for directories. The page
// starts with a title frontmatter. An existing file is left alone.
func (s *Service) CreatePlaceholder(ctx context.Context, route, title, branch string, dir bool) (string, error) {
	path := s.RepoPath(route)
	var content []byte
	if dir {
		path = s.DirKeepPath(route)
	} else {
		var err error
		if content, err = parser.Compose(map[string]any{"title": title}, ""); err != nil {
			return "", err
		}
	}
	sha, err := s.store.PutFile(ctx, remote.PutRequest{
		Path:    path,
		Branch:  branch,
		Content: content,
		Message: "Add " + path,
	})
	if errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrAlreadyExists) {
		s.log.Info("pages: placeholder already present", slog.String("path", path), slog.String("branch", branch))
		return path, nil
	}
	if err != nil {
		return "", fmt.Errorf("pages: create %s@%s: %w", path, branch, err)
	}
	s.cache.RecordCommit(path, branch, content, sha)
	return path, nil
}

// Delete removes the page at route, or with dir the whole directory under
// it, and returns the repository paths it removed. Files are deleted one
// commit at a time using their current blob ids.
func (s *Service) Delete(ctx context.Context, route, branch string, dir bool) (deleted []string, err error) {
	defer func() { metrics.RecordCommit("delete", err) }()
	if strings.Trim(route, "/") == "" {
		return nil, fmt.Errorf("pages: %w: empty route", apperr.ErrInvalidName)
	}
	if dir {
		deleted, err = s.deleteDir(ctx, s.join(strings.Trim(route, "/")), branch, nil)
	} else {
		path := s.RepoPath(route)
		var f remote.File
		if f, err = s.store.GetFile(ctx, path, branch); err == nil {
			if err = s.deleteFile(ctx, path, branch, f.SHA); err == nil {
				deleted = []string{path}
			}
		}
	}
	if err != nil {
		return deleted, fmt.Errorf("pages: delete %s@%s: %w", route, branch, err)
	}
	s.log.Info("pages: deleted",
		slog.String("route", route),
		slog.String("branch", branch),
		slog.Int("files", len(deleted)))
	return deleted, nil
}

func (s *Service) deleteDir(ctx context.Context, dir, branch string, deleted []string) ([]string, error) {
	entries, err := s.store.ListDir(ctx, dir, branch)
	if err != nil {
		return deleted, err
	}
	for _, e := range entries {
		if e.Dir {
			if deleted, err = s.deleteDir(ctx, e.Path, branch, deleted); err != nil {
				return deleted, err
			}
			continue
		}
		if err := s.deleteFile(ctx, e.Path, branch, e.SHA); err != nil {
			return deleted, err
		}
		deleted = append(deleted, e.Path)
	}
	return deleted, nil
}

func (s *Service) deleteFile(ctx context.Context, path, branch, sha string) error {
	err := s.store.DeleteFile(ctx, remote.DeleteRequest{
		Path:    path,
		Branch:  branch,
		SHA:     sha,
		Message: "Delete: " + path,
	})
	if err != nil {
		return err
	}
	s.cache.Forget(path, branch)
	return nil
}

func (s *Service) build(route, path, branch string, data []byte, sha, source string, at time.Time) (*Page, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return &Page{
		Route:       "/" + strings.Trim(route, "/"),
		RepoPath:    path,
		Branch:      branch,
		Title:       res.Title,
		Description: res.Description,
		Content:     string(data),
		SHA:         sha,
		Tags:        nonNilSlice(res.Tags),
		Headings:    nonNilSlice(res.Headings),
		Images:      nonNilSlice(res.Images),
		Links:       nonNilSlice(res.Links),
		Frontmatter: res.Frontmatter,
		Source:      source,
		FetchedAt:   at,
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
