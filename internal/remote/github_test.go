package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/starford/folio/internal/apperr"
)

type fakeCommit struct {
	SHA     string
	Message string
	Branch  string
}

type fakePull struct {
	Number    int
	Title     string
	Head      string
	Base      string
	Mergeable bool
}

// fakeGitHub serves the REST endpoints the client uses.
type fakeGitHub struct {
	mu        sync.Mutex
	url       string
	files     map[string]string // branch + ":" + path -> content
	shas      map[string]string
	branches  []string
	pulls     []fakePull
	commits   []fakeCommit
	lastWrite map[string]any
	auth      string
	cache     string
	pageSize  int
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *GitHub) {
	t.Helper()
	f := &fakeGitHub{files: map[string]string{}, shas: map[string]string{}, branches: []string{"main"}, pageSize: 100}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	f.url = srv.URL
	g, err := NewGitHub(GitHubConfig{APIURL: srv.URL, Owner: "acme", Repo: "docs", Token: "tok"}, nil)
	if err != nil {
		t.Fatalf("NewGitHub: %v", err)
	}
	return f, g
}

func (f *fakeGitHub) put(branch, path, content string) {
	key := branch + ":" + path
	f.files[key] = content
	f.shas[key] = "sha-" + content
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string, details ...string) {
	body := map[string]any{"message": msg}
	if len(details) > 0 {
		var errs []map[string]string
		for _, d := range details {
			errs = append(errs, map[string]string{"message": d})
		}
		body["errors"] = errs
	}
	writeJSON(w, status, body)
}

func (f *fakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")
	f.cache = r.Header.Get("Cache-Control")

	const prefix = "/repos/acme/docs/"
	p := strings.TrimPrefix(r.URL.Path, prefix)
	q := r.URL.Query()

	switch {
	case strings.HasPrefix(p, "contents/") && r.Method == http.MethodGet:
		f.getContents(w, q.Get("ref"), strings.TrimPrefix(p, "contents/"))

	case strings.HasPrefix(p, "contents/") && (r.Method == http.MethodPut || r.Method == http.MethodDelete):
		var body struct {
			Message string `json:"message"`
			Content []byte `json:"content"`
			SHA     string `json:"sha"`
			Branch  string `json:"branch"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastWrite = map[string]any{"message": body.Message, "sha": body.SHA, "branch": body.Branch}
		key := body.Branch + ":" + strings.TrimPrefix(p, "contents/")
		cur, exists := f.shas[key]
		switch {
		case r.Method == http.MethodDelete && !exists:
			fail(w, http.StatusNotFound, "Not Found")
		case exists && body.SHA == "":
			fail(w, http.StatusUnprocessableEntity, `Invalid request. "sha" wasn't supplied.`)
		case exists && cur != body.SHA:
			fail(w, http.StatusConflict, "does not match "+cur)
		case r.Method == http.MethodDelete:
			delete(f.files, key)
			delete(f.shas, key)
			writeJSON(w, http.StatusOK, map[string]any{"content": nil, "commit": map[string]string{"sha": "c1"}})
		default:
			f.files[key] = string(body.Content)
			f.shas[key] = "sha-" + string(body.Content)
			writeJSON(w, http.StatusCreated, map[string]any{"content": map[string]string{"sha": f.shas[key]}})
		}

	case p == "branches":
		page, _ := strconv.Atoi(q.Get("page"))
		if page == 0 {
			page = 1
		}
		lo := (page - 1) * f.pageSize
		hi := min(lo+f.pageSize, len(f.branches))
		out := []map[string]string{}
		for _, b := range f.branches[min(lo, hi):hi] {
			out = append(out, map[string]string{"name": b})
		}
		if hi < len(f.branches) {
			w.Header().Set("Link", fmt.Sprintf(`<%s%sbranches?page=%d>; rel="next"`, f.url, prefix, page+1))
		}
		writeJSON(w, http.StatusOK, out)

	case strings.HasPrefix(p, "git/ref/heads/"):
		name := strings.TrimPrefix(p, "git/ref/heads/")
		for _, b := range f.branches {
			if b == name {
				writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/" + b, "object": map[string]string{"sha": "head-" + b}})
				return
			}
		}
		fail(w, http.StatusNotFound, "Not Found")

	case p == "git/refs" && r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		name := strings.TrimPrefix(body["ref"], "refs/heads/")
		for _, b := range f.branches {
			if b == name {
				fail(w, http.StatusUnprocessableEntity, "Reference already exists")
				return
			}
		}
		f.branches = append(f.branches, name)
		writeJSON(w, http.StatusCreated, map[string]any{"ref": body["ref"], "object": map[string]string{"sha": body["sha"]}})

	case strings.HasPrefix(p, "git/refs/heads/") && r.Method == http.MethodDelete:
		name := strings.TrimPrefix(p, "git/refs/heads/")
		for i, b := range f.branches {
			if b == name {
				f.branches = append(f.branches[:i], f.branches[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		fail(w, http.StatusUnprocessableEntity, "Reference does not exist")

	case p == "pulls" && r.Method == http.MethodGet:
		out := []map[string]any{}
		for _, pr := range f.pulls {
			out = append(out, map[string]any{"number": pr.Number, "title": pr.Title})
		}
		writeJSON(w, http.StatusOK, out)

	case strings.HasPrefix(p, "pulls/") && r.Method == http.MethodGet:
		n, _ := strconv.Atoi(strings.TrimPrefix(p, "pulls/"))
		for _, pr := range f.pulls {
			if pr.Number == n {
				writeJSON(w, http.StatusOK, pullJSON(pr))
				return
			}
		}
		fail(w, http.StatusNotFound, "Not Found")

	case p == "pulls" && r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, pr := range f.pulls {
			if pr.Head == body["head"] && pr.Base == body["base"] {
				fail(w, http.StatusUnprocessableEntity, "Validation Failed", "A pull request already exists for acme:"+pr.Head+".")
				return
			}
		}
		pr := fakePull{Number: len(f.pulls) + 1, Title: body["title"], Head: body["head"], Base: body["base"]}
		f.pulls = append(f.pulls, pr)
		writeJSON(w, http.StatusCreated, pullJSON(pr))

	case p == "commits":
		limit, _ := strconv.Atoi(q.Get("per_page"))
		out := []map[string]any{}
		for _, c := range f.commits {
			if c.Branch != q.Get("sha") || len(out) == limit {
				continue
			}
			out = append(out, map[string]any{
				"sha":      c.SHA,
				"html_url": "https://github.com/acme/docs/commit/" + c.SHA,
				"commit": map[string]any{
					"message": c.Message,
					"author":  map[string]string{"name": "Ada", "date": "2026-10-01T10:00:00Z"},
				},
			})
		}
		writeJSON(w, http.StatusOK, out)

	default:
		fail(w, http.StatusNotFound, "Not Found")
	}
}

func (f *fakeGitHub) getContents(w http.ResponseWriter, ref, path string) {
	key := ref + ":" + path
	if content, ok := f.files[key]; ok {
		writeJSON(w, http.StatusOK, map[string]string{
			"type":     "file",
			"path":     path,
			"sha":      f.shas[key],
			"content":  wrap60(base64.StdEncoding.EncodeToString([]byte(content))),
			"encoding": "base64",
		})
		return
	}

	seen := map[string]bool{}
	var out []map[string]string
	for k := range f.files {
		rest, ok := strings.CutPrefix(k, ref+":"+path+"/")
		if !ok {
			continue
		}
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		if isDir {
			out = append(out, map[string]string{"type": "dir", "path": path + "/" + name, "sha": "tree-" + name})
		} else {
			out = append(out, map[string]string{"type": "file", "path": path + "/" + name, "sha": f.shas[k]})
		}
	}
	if out == nil {
		fail(w, http.StatusNotFound, "Not Found")
		return
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["path"] < out[j]["path"] })
	writeJSON(w, http.StatusOK, out)
}

func pullJSON(pr fakePull) map[string]any {
	return map[string]any{
		"number":          pr.Number,
		"title":           pr.Title,
		"state":           "open",
		"html_url":        fmt.Sprintf("https://github.com/acme/docs/pull/%d", pr.Number),
		"head":            map[string]string{"ref": pr.Head},
		"base":            map[string]string{"ref": pr.Base},
		"user":            map[string]string{"login": "ada"},
		"mergeable":       pr.Mergeable,
		"mergeable_state": "clean",
		"created_at":      "2026-10-01T10:00:00Z",
	}
}

// wrap60 breaks base64 text at 60 columns the way GitHub does.
func wrap60(s string) string {
	var b strings.Builder
	for len(s) > 60 {
		b.WriteString(s[:60] + "\n")
		s = s[60:]
	}
	b.WriteString(s)
	return b.String()
}

func TestGitHub_GetFile(t *testing.T) {
	f, g := newFakeGitHub(t)
	body := "# Intro\n" + strings.Repeat("body text ", 20)
	f.put("main", "content/intro.md", body)

	file, err := g.GetFile(context.Background(), "content/intro.md", "main")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(file.Content) != body || file.SHA != "sha-"+body {
		t.Errorf("file = %q sha %q", file.Content, file.SHA)
	}
	if f.auth != "Bearer tok" {
		t.Errorf("Authorization = %q", f.auth)
	}
	if f.cache != "no-cache" {
		t.Errorf("Cache-Control = %q", f.cache)
	}
}

func TestGitHub_GetFileNotFound(t *testing.T) {
	f, g := newFakeGitHub(t)
	f.put("main", "content/guides/setup.md", "x")
	ctx := context.Background()

	if _, err := g.GetFile(ctx, "content/missing.md", "main"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
	if _, err := g.GetFile(ctx, "content/guides", "main"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("directory err = %v, want ErrNotFound", err)
	}
}

func TestGitHub_PutFile(t *testing.T) {
	f, g := newFakeGitHub(t)
	ctx := context.Background()
	sha, err := g.PutFile(ctx, PutRequest{
		Path: "content/a.md", Branch: "dev", Content: []byte("hello"), Message: "Add a",
	})
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if sha != "sha-hello" {
		t.Errorf("sha = %q", sha)
	}
	if f.lastWrite["message"] != "Add a [branch: dev]" {
		t.Errorf("message = %q", f.lastWrite["message"])
	}

	if _, err := g.PutFile(ctx, PutRequest{Path: "content/a.md", Branch: "dev", Content: []byte("again"), SHA: "stale", Message: "Edit a"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale sha err = %v, want ErrConflict", err)
	}
	if _, err := g.PutFile(ctx, PutRequest{Path: "content/a.md", Branch: "dev", Content: []byte("again"), Message: "Recreate a"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("missing sha err = %v, want ErrConflict", err)
	}
	if sha, err := g.PutFile(ctx, PutRequest{Path: "content/a.md", Branch: "dev", Content: []byte("again"), SHA: "sha-hello", Message: "Edit a"}); err != nil || sha != "sha-again" {
		t.Errorf("update sha=%q err=%v", sha, err)
	}
}

func TestGitHub_DeleteFileAndListDir(t *testing.T) {
	f, g := newFakeGitHub(t)
	ctx := context.Background()
	f.put("main", "content/guides/setup.md", "setup")
	f.put("main", "content/guides/deep/more.md", "more")

	entries, err := g.ListDir(ctx, "content/guides", "main")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	want := []DirEntry{
		{Path: "content/guides/deep", SHA: "tree-deep", Dir: true},
		{Path: "content/guides/setup.md", SHA: "sha-setup"},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %+v", entries)
	}
	if _, err := g.ListDir(ctx, "content/guides/setup.md", "main"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ListDir on file err = %v", err)
	}

	if err := g.DeleteFile(ctx, DeleteRequest{Path: "content/guides/setup.md", Branch: "main", SHA: "wrong", Message: "Delete"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale delete err = %v", err)
	}
	if err := g.DeleteFile(ctx, DeleteRequest{Path: "content/guides/setup.md", Branch: "main", SHA: "sha-setup", Message: "Delete"}); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if f.lastWrite["message"] != "Delete [branch: main]" {
		t.Errorf("message = %q", f.lastWrite["message"])
	}
	if err := g.DeleteFile(ctx, DeleteRequest{Path: "content/guides/setup.md", Branch: "main", SHA: "sha-setup"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestGitHub_Branches(t *testing.T) {
	_, g := newFakeGitHub(t)
	ctx := context.Background()

	if err := g.CreateBranch(ctx, "feature", "main"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := g.CreateBranch(ctx, "feature", "main"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}
	if err := g.CreateBranch(ctx, "x", "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing source err = %v", err)
	}
	if head, err := g.BranchHead(ctx, "feature"); err != nil || head != "head-feature" {
		t.Errorf("head = %q err = %v", head, err)
	}

	if err := g.DeleteBranch(ctx, "feature"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if err := g.DeleteBranch(ctx, "feature"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestGitHub_ListBranchesFollowsPages(t *testing.T) {
	f, g := newFakeGitHub(t)
	f.pageSize = 2
	f.branches = []string{"main", "b", "a", "c", "b"}

	names, err := g.ListBranches(context.Background())
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a", "b", "c", "main"}) {
		t.Errorf("branches = %v", names)
	}
}

func TestGitHub_PullRequests(t *testing.T) {
	f, g := newFakeGitHub(t)
	ctx := context.Background()
	f.pulls = []fakePull{{Number: 1, Title: "Docs refresh", Head: "docs", Base: "main", Mergeable: true}}

	prs, err := g.ListPullRequests(ctx)
	if err != nil {
		t.Fatalf("ListPullRequests: %v", err)
	}
	if len(prs) != 1 || prs[0].Head != "docs" || prs[0].Author != "ada" || prs[0].Mergeable == nil || !*prs[0].Mergeable {
		t.Errorf("prs = %+v", prs)
	}

	pr, err := g.CreatePullRequest(ctx, NewPullRequest{Base: "main", Head: "feature", Title: "Add setup guide", Body: "New page"})
	if err != nil {
		t.Fatalf("CreatePullRequest: %v", err)
	}
	if pr.Number != 2 || pr.Base != "main" || pr.Head != "feature" || pr.URL == "" {
		t.Errorf("created = %+v", pr)
	}
	if _, err := g.CreatePullRequest(ctx, NewPullRequest{Base: "main", Head: "feature", Title: "Again"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate pull request err = %v", err)
	}
}

func TestGitHub_ListCommits(t *testing.T) {
	f, g := newFakeGitHub(t)
	f.commits = []fakeCommit{
		{SHA: "c3", Message: "Update navigation", Branch: "main"},
		{SHA: "c2", Message: "Other branch", Branch: "dev"},
		{SHA: "c1", Message: "Initial", Branch: "main"},
	}
	commits, err := g.ListCommits(context.Background(), "main", "", 10)
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 2 || commits[0].SHA != "c3" || commits[0].Author != "Ada" || commits[0].Date.IsZero() {
		t.Errorf("commits = %+v", commits)
	}
}
