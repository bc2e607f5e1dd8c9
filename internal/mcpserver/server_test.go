package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/folio/internal/branches"
	"github.com/starford/folio/internal/contentcache"
	"github.com/starford/folio/internal/drafts"
	"github.com/starford/folio/internal/editor"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/navsync"
	"github.com/starford/folio/internal/navtree"
	"github.com/starford/folio/internal/pages"
	"github.com/starford/folio/internal/persist"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/schedule"
	"github.com/starford/folio/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.FakeStore) {
	t.Helper()
	store := testutil.NewFakeStore("main")
	data, err := navtree.Marshal(models.Tree{Entries: []models.Entry{
		models.NewFile("Alpha", "/alpha"),
		models.NewFile("Beta", "/beta"),
	}})
	if err != nil {
		t.Fatal(err)
	}
	store.Seed("main", navsync.DefaultBlobPath, data)
	store.Seed("main", "content/alpha.md", []byte("---\ntitle: Alpha\n---\n# Alpha\n"))

	state := testutil.TestState(t)
	mock := clock.NewMock()
	cache, err := contentcache.New(store, state, mock, 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := drafts.New(state, mock, nil)
	if err != nil {
		t.Fatal(err)
	}
	syn, err := navsync.New(navsync.Config{}, cache, ds, state, nil, mock, nil)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := editor.New(editor.Deps{
		Sync:       syn,
		Drafts:     ds,
		PageDrafts: drafts.NewPageStore(state, mock, nil),
		Bridge:     persist.New(store, cache, ds, syn, nil),
		Pages:      pages.NewService(store, cache, mock, "content", 0, nil),
		Branches:   branches.New(store, clock.New(), schedule.Policy{Attempts: 1, Interval: time.Millisecond}, nil),
		Cache:      cache,
		State:      state,
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(sess, "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "get_navigation":
		result, err = srv.getNavigation(ctx, req)
	case "insert_file":
		result, err = srv.insertFile(ctx, req)
	case "insert_directory":
		result, err = srv.insertDirectory(ctx, req)
	case "move_entry":
		result, err = srv.moveEntry(ctx, req)
	case "commit_navigation":
		result, err = srv.commitNavigation(ctx, req)
	case "discard_navigation":
		result, err = srv.discardNavigation(ctx, req)
	case "read_page":
		result, err = srv.readPage(ctx, req)
	case "delete_page":
		result, err = srv.deletePage(ctx, req)
	case "list_pull_requests":
		result, err = srv.listPullRequests(ctx, req)
	case "create_pull_request":
		result, err = srv.createPullRequest(ctx, req)
	case "list_commits":
		result, err = srv.listCommits(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func navigationPaths(t *testing.T, srv *Server) []string {
	t.Helper()
	r := callTool(t, srv, "get_navigation", map[string]any{})
	if r.IsError {
		t.Fatalf("get_navigation: %s", resultText(r))
	}
	var v editor.View
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range v.Navigation {
		out = append(out, e.Path)
	}
	return out
}

func TestInsertMoveCommit(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "insert_directory", map[string]any{"title": "Guides"})
	if r.IsError {
		t.Fatalf("insert_directory: %s", resultText(r))
	}
	r = callTool(t, srv, "insert_file", map[string]any{"parent": "/guides", "title": "Setup"})
	if r.IsError {
		t.Fatalf("insert_file: %s", resultText(r))
	}
	r = callTool(t, srv, "move_entry", map[string]any{"path": "/beta", "direction": "up"})
	if r.IsError {
		t.Fatalf("move_entry: %s", resultText(r))
	}

	got := strings.Join(navigationPaths(t, srv), ",")
	if got != "/guides,/beta,/alpha" {
		t.Errorf("navigation = %s", got)
	}

	r = callTool(t, srv, "commit_navigation", map[string]any{})
	if r.IsError {
		t.Fatalf("commit_navigation: %s", resultText(r))
	}
	data, _ := store.Content("main", navsync.DefaultBlobPath)
	if !strings.Contains(string(data), `"/guides/setup"`) {
		t.Errorf("committed blob = %s", data)
	}
}

func TestMoveEntry_Errors(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "move_entry", map[string]any{"path": "/ghost", "direction": "up"}); !r.IsError {
		t.Error("expected error for missing entry")
	}
	if r := callTool(t, srv, "move_entry", map[string]any{"path": "/alpha", "direction": "sideways"}); !r.IsError {
		t.Error("expected error for bad direction")
	}
	r := callTool(t, srv, "move_entry", map[string]any{"path": "/alpha", "direction": "up"})
	if r.IsError || !strings.Contains(resultText(r), "top") {
		t.Errorf("move first up = %q", resultText(r))
	}
}

func TestCommitNavigation_NothingPending(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "commit_navigation", map[string]any{}); !r.IsError {
		t.Error("expected error without a draft")
	}
}

func TestDiscardNavigation(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "insert_file", map[string]any{"title": "Gamma"})

	r := callTool(t, srv, "discard_navigation", map[string]any{})
	if r.IsError {
		t.Fatalf("discard: %s", resultText(r))
	}
	if got := strings.Join(navigationPaths(t, srv), ","); got != "/alpha,/beta" {
		t.Errorf("navigation = %s", got)
	}
}

func TestReadPage(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_page", map[string]any{"path": "/alpha"})
	if r.IsError || !strings.Contains(resultText(r), "# Alpha") {
		t.Errorf("read_page = %q", resultText(r))
	}
	if r := callTool(t, srv, "read_page", map[string]any{"path": "/nope"}); !r.IsError || resultText(r) != "not found: /nope" {
		t.Errorf("missing page = %q", resultText(r))
	}
}

func TestReadPage_PassesThroughOtherErrors(t *testing.T) {
	srv, store := testServer(t)
	store.GetErr = errors.New("github: status 502")

	r := callTool(t, srv, "read_page", map[string]any{"path": "/beta"})
	if !r.IsError {
		t.Fatal("expected an error")
	}
	if text := resultText(r); strings.Contains(text, "not found") || !strings.Contains(text, "status 502") {
		t.Errorf("error text = %q", text)
	}
}

func TestDeletePage(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "delete_page", map[string]any{"path": "/alpha"})
	if r.IsError {
		t.Fatalf("delete_page: %s", resultText(r))
	}
	if _, ok := store.Content("main", "content/alpha.md"); ok {
		t.Error("page survived")
	}
	if r := callTool(t, srv, "delete_page", map[string]any{"path": "/alpha"}); !r.IsError {
		t.Error("expected error for a deleted page")
	}
}

func TestPullRequestsAndCommits(t *testing.T) {
	srv, store := testServer(t)
	if err := store.CreateBranch(context.Background(), "feature", "main"); err != nil {
		t.Fatal(err)
	}
	store.SeedCommits("main", remote.Commit{SHA: "c1", Message: "first"})

	if r := callTool(t, srv, "create_pull_request", map[string]any{"base": "main", "head": "ghost", "title": "x"}); !r.IsError {
		t.Error("expected error for a missing head branch")
	}
	r := callTool(t, srv, "create_pull_request", map[string]any{"base": "main", "head": "feature", "title": "Docs"})
	if r.IsError {
		t.Fatalf("create_pull_request: %s", resultText(r))
	}
	r = callTool(t, srv, "list_pull_requests", map[string]any{})
	var prs []remote.PullRequest
	if err := json.Unmarshal([]byte(resultText(r)), &prs); err != nil || len(prs) != 1 {
		t.Errorf("list_pull_requests = %s", resultText(r))
	}
	r = callTool(t, srv, "list_commits", map[string]any{"limit": 5})
	if r.IsError || !strings.Contains(resultText(r), `"c1"`) {
		t.Errorf("list_commits = %s", resultText(r))
	}
}

func TestNavigationFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readNavigationFormat(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != NavigationFormatURI || !strings.Contains(tc.Text, "children") {
		t.Errorf("resource = %+v", contents[0])
	}
}
