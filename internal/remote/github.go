package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/metrics"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com/"

const (
	pageSize       = 100
	detailFanout   = 4
	defaultCommits = 10
)

// GitHub implements Store and History over the GitHub REST API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	log    *slog.Logger
}

// GitHubConfig configures a GitHub store.
type GitHubConfig struct {
	APIURL string
	Owner  string
	Repo   string
	Token  string
	Client *http.Client
}

// NewGitHub creates a GitHub store.
func NewGitHub(cfg GitHubConfig, log *slog.Logger) (*GitHub, error) {
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc = &http.Client{Transport: noCache{base}, Timeout: hc.Timeout}

	client := github.NewClient(hc)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" && cfg.APIURL != DefaultAPIURL {
		u, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("remote: api url: %w", err)
		}
		client.BaseURL = u
	}
	if log == nil {
		log = slog.Default()
	}
	return &GitHub{client: client, owner: cfg.Owner, repo: cfg.Repo, log: log}, nil
}

// noCache sets Cache-Control: no-cache on every request.
type noCache struct{ next http.RoundTripper }

func (t noCache) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Cache-Control", "no-cache")
	return t.next.RoundTrip(r)
}

// GetFile reads path at the tip of branch.
func (g *GitHub) GetFile(ctx context.Context, path, branch string) (File, error) {
	start := time.Now()
	fc, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	metrics.RecordRemote("get_file", time.Since(start), err)
	if err != nil {
		return File{}, fmt.Errorf("remote: get %s@%s: %w", path, branch, classify(err))
	}
	if fc == nil || fc.GetType() != "file" {
		return File{}, fmt.Errorf("remote: get %s@%s: %w: not a file", path, branch, apperr.ErrNotFound)
	}
	data, err := fc.GetContent()
	if err != nil {
		return File{}, fmt.Errorf("remote: decode %s: %w", path, err)
	}
	return File{Path: path, Branch: branch, Content: []byte(data), SHA: fc.GetSHA()}, nil
}

// PutFile creates (empty SHA) or updates a file. The commit message carries
// a "[branch: x]" suffix.
func (g *GitHub) PutFile(ctx context.Context, req PutRequest) (string, error) {
	start := time.Now()
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(branchMessage(req.Message, req.Branch)),
		Content: req.Content,
		Branch:  github.Ptr(req.Branch),
	}
	var (
		resp *github.RepositoryContentResponse
		err  error
	)
	if req.SHA == "" {
		resp, _, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, req.Path, opts)
	} else {
		opts.SHA = github.Ptr(req.SHA)
		resp, _, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, req.Path, opts)
	}
	metrics.RecordRemote("put_file", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("remote: put %s@%s: %w", req.Path, req.Branch, classify(err))
	}
	sha := resp.Content.GetSHA()
	g.log.Info("remote: file committed",
		slog.String("path", req.Path),
		slog.String("branch", req.Branch),
		slog.String("sha", sha))
	return sha, nil
}

// DeleteFile removes one file.
func (g *GitHub) DeleteFile(ctx context.Context, req DeleteRequest) error {
	start := time.Now()
	_, _, err := g.client.Repositories.DeleteFile(ctx, g.owner, g.repo, req.Path, &github.RepositoryContentFileOptions{
		Message: github.Ptr(branchMessage(req.Message, req.Branch)),
		SHA:     github.Ptr(req.SHA),
		Branch:  github.Ptr(req.Branch),
	})
	metrics.RecordRemote("delete_file", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("remote: delete %s@%s: %w", req.Path, req.Branch, classify(err))
	}
	g.log.Info("remote: file deleted", slog.String("path", req.Path), slog.String("branch", req.Branch))
	return nil
}

// ListDir lists a directory at the tip of branch.
func (g *GitHub) ListDir(ctx context.Context, path, branch string) ([]DirEntry, error) {
	start := time.Now()
	fc, dir, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	metrics.RecordRemote("list_dir", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("remote: list %s@%s: %w", path, branch, classify(err))
	}
	if fc != nil {
		return nil, fmt.Errorf("remote: list %s@%s: %w: not a directory", path, branch, apperr.ErrNotFound)
	}
	out := make([]DirEntry, 0, len(dir))
	for _, c := range dir {
		switch c.GetType() {
		case "dir":
			out = append(out, DirEntry{Path: c.GetPath(), SHA: c.GetSHA(), Dir: true})
		case "file", "symlink":
			out = append(out, DirEntry{Path: c.GetPath(), SHA: c.GetSHA()})
		}
	}
	return out, nil
}

// ListBranches returns every branch name, following pagination.
func (g *GitHub) ListBranches(ctx context.Context) ([]string, error) {
	start := time.Now()
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	var (
		names []string
		err   error
	)
	for {
		var (
			batch []*github.Branch
			resp  *github.Response
		)
		batch, resp, err = g.client.Repositories.ListBranches(ctx, g.owner, g.repo, opts)
		if err != nil {
			break
		}
		for _, b := range batch {
			names = append(names, b.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	metrics.RecordRemote("list_branches", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("remote: list branches: %w", classify(err))
	}
	return SortBranches(names), nil
}

// BranchHead returns the commit SHA at the tip of branch.
func (g *GitHub) BranchHead(ctx context.Context, branch string) (string, error) {
	start := time.Now()
	ref, _, err := g.client.Git.GetRef(ctx, g.owner, g.repo, "heads/"+branch)
	metrics.RecordRemote("branch_head", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("remote: head of %s: %w", branch, classify(err))
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateBranch creates refs/heads/name pointing at the head of from.
func (g *GitHub) CreateBranch(ctx context.Context, name, from string) error {
	sha, err := g.BranchHead(ctx, from)
	if err != nil {
		return err
	}
	start := time.Now()
	_, _, err = g.client.Git.CreateRef(ctx, g.owner, g.repo, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + name),
		Object: &github.GitObject{SHA: github.Ptr(sha)},
	})
	metrics.RecordRemote("create_branch", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("remote: create branch %s from %s: %w", name, from, classify(err))
	}
	g.log.Info("remote: branch created", slog.String("branch", name), slog.String("from", from))
	return nil
}

// DeleteBranch removes refs/heads/name.
func (g *GitHub) DeleteBranch(ctx context.Context, name string) error {
	start := time.Now()
	_, err := g.client.Git.DeleteRef(ctx, g.owner, g.repo, "heads/"+name)
	metrics.RecordRemote("delete_branch", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("remote: delete branch %s: %w", name, classify(err))
	}
	g.log.Info("remote: branch deleted", slog.String("branch", name))
	return nil
}

// ListPullRequests returns the open pull requests. The list endpoint omits
// merge status, so each one is fetched individually.
func (g *GitHub) ListPullRequests(ctx context.Context) ([]PullRequest, error) {
	start := time.Now()
	opts := &github.PullRequestListOptions{State: "open", ListOptions: github.ListOptions{PerPage: pageSize}}
	var (
		numbers []int
		err     error
	)
	for {
		var (
			batch []*github.PullRequest
			resp  *github.Response
		)
		batch, resp, err = g.client.PullRequests.List(ctx, g.owner, g.repo, opts)
		if err != nil {
			break
		}
		for _, pr := range batch {
			numbers = append(numbers, pr.GetNumber())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	if err != nil {
		metrics.RecordRemote("list_pulls", time.Since(start), err)
		return nil, fmt.Errorf("remote: list pull requests: %w", classify(err))
	}

	out := make([]PullRequest, len(numbers))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(detailFanout)
	for i, n := range numbers {
		eg.Go(func() error {
			pr, _, err := g.client.PullRequests.Get(egCtx, g.owner, g.repo, n)
			if err != nil {
				return fmt.Errorf("pull request #%d: %w", n, classify(err))
			}
			out[i] = toPullRequest(pr)
			return nil
		})
	}
	err = eg.Wait()
	metrics.RecordRemote("list_pulls", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("remote: list pull requests: %w", err)
	}
	return out, nil
}

// CreatePullRequest opens a pull request from pr.Head into pr.Base.
func (g *GitHub) CreatePullRequest(ctx context.Context, pr NewPullRequest) (PullRequest, error) {
	start := time.Now()
	created, _, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, &github.NewPullRequest{
		Title: github.Ptr(pr.Title),
		Head:  github.Ptr(pr.Head),
		Base:  github.Ptr(pr.Base),
		Body:  github.Ptr(pr.Body),
	})
	metrics.RecordRemote("create_pull", time.Since(start), err)
	if err != nil {
		return PullRequest{}, fmt.Errorf("remote: open pull request %s into %s: %w", pr.Head, pr.Base, classify(err))
	}
	g.log.Info("remote: pull request opened",
		slog.Int("number", created.GetNumber()),
		slog.String("head", pr.Head),
		slog.String("base", pr.Base))
	return toPullRequest(created), nil
}

// ListCommits returns recent commits on branch.
func (g *GitHub) ListCommits(ctx context.Context, branch, path string, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = defaultCommits
	}
	start := time.Now()
	commits, _, err := g.client.Repositories.ListCommits(ctx, g.owner, g.repo, &github.CommitsListOptions{
		SHA:         branch,
		Path:        path,
		ListOptions: github.ListOptions{PerPage: min(limit, pageSize)},
	})
	metrics.RecordRemote("list_commits", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("remote: commits of %s: %w", branch, classify(err))
	}
	out := make([]Commit, 0, len(commits))
	for _, c := range commits {
		author := c.GetCommit().GetAuthor()
		out = append(out, Commit{
			SHA:     c.GetSHA(),
			Message: c.GetCommit().GetMessage(),
			Author:  author.GetName(),
			Date:    author.GetDate().Time,
			URL:     c.GetHTMLURL(),
		})
	}
	return out, nil
}

func toPullRequest(pr *github.PullRequest) PullRequest {
	return PullRequest{
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		Head:           pr.GetHead().GetRef(),
		Base:           pr.GetBase().GetRef(),
		Author:         pr.GetUser().GetLogin(),
		AuthorAvatar:   pr.GetUser().GetAvatarURL(),
		URL:            pr.GetHTMLURL(),
		State:          pr.GetState(),
		Mergeable:      pr.Mergeable,
		MergeableState: pr.GetMergeableState(),
		CreatedAt:      pr.GetCreatedAt().Time,
	}
}

func branchMessage(msg, branch string) string {
	return fmt.Sprintf("%s [branch: %s]", msg, branch)
}

// classify maps GitHub API errors to the shared sentinel errors.
func classify(err error) error {
	var ge *github.ErrorResponse
	if !errors.As(err, &ge) || ge.Response == nil {
		return err
	}
	msg := ge.Message
	for _, e := range ge.Errors {
		if e.Message != "" {
			msg += "; " + e.Message
		}
	}
	lower := strings.ToLower(msg)
	status := ge.Response.StatusCode
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, msg)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", apperr.ErrConflict, msg)
	case status == http.StatusUnprocessableEntity && strings.Contains(lower, "already exists"):
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, msg)
	case status == http.StatusUnprocessableEntity && strings.Contains(lower, "reference does not exist"):
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, msg)
	case status == http.StatusUnprocessableEntity && strings.Contains(lower, "sha"):
		return fmt.Errorf("%w: %s", apperr.ErrConflict, msg)
	}
	return fmt.Errorf("github: status %d: %s", status, msg)
}

var (
	_ Store   = (*GitHub)(nil)
	_ History = (*GitHub)(nil)
)
