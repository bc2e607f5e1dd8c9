package branches

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/schedule"
	"github.com/starford/folio/internal/testutil"
)

func TestOpenPullRequest(t *testing.T) {
	store := testutil.NewFakeStore("main", "feature")
	m := New(store, clock.NewMock(), schedule.Policy{}, nil)
	ctx := context.Background()

	pr, err := m.OpenPullRequest(ctx, remote.NewPullRequest{Base: "main", Head: "feature", Title: "  Add setup guide ", Body: "New page"})
	if err != nil {
		t.Fatalf("OpenPullRequest: %v", err)
	}
	if pr.Number != 1 || pr.Title != "Add setup guide" || pr.Head != "feature" {
		t.Errorf("pr = %+v", pr)
	}

	prs, err := m.PullRequests(ctx)
	if err != nil || len(prs) != 1 {
		t.Fatalf("PullRequests = %v, %v", prs, err)
	}

	cases := map[string]struct {
		pr   remote.NewPullRequest
		want error
	}{
		"missing head": {remote.NewPullRequest{Base: "main", Head: "ghost", Title: "x"}, apperr.ErrNotFound},
		"missing base": {remote.NewPullRequest{Base: "ghost", Head: "feature", Title: "x"}, apperr.ErrNotFound},
		"into itself":  {remote.NewPullRequest{Base: "main", Head: "main", Title: "x"}, apperr.ErrInvalidName},
		"empty title":  {remote.NewPullRequest{Base: "main", Head: "feature", Title: " "}, apperr.ErrInvalidName},
		"already open": {remote.NewPullRequest{Base: "main", Head: "feature", Title: "again"}, apperr.ErrAlreadyExists},
	}
	for name, tc := range cases {
		if _, err := m.OpenPullRequest(ctx, tc.pr); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", name, err, tc.want)
		}
	}
}

func TestCommits(t *testing.T) {
	store := testutil.NewFakeStore("main")
	var history []remote.Commit
	for i := 0; i < 15; i++ {
		history = append(history, remote.Commit{SHA: string(rune('a' + i)), Message: "change", Date: time.Now()})
	}
	store.SeedCommits("main", history...)
	m := New(store, clock.NewMock(), schedule.Policy{}, nil)

	commits, err := m.Commits(context.Background(), "main", "", 0)
	if err != nil {
		t.Fatalf("Commits: %v", err)
	}
	if len(commits) != DefaultCommitLimit || commits[0].SHA != "a" {
		t.Errorf("got %d commits, first %+v", len(commits), commits[0])
	}
	if _, err := m.Commits(context.Background(), "ghost", "", 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing branch err = %v", err)
	}
}

func TestHistory_UnsupportedOnLocalStore(t *testing.T) {
	fs, err := remote.NewFS(t.TempDir(), "main")
	if err != nil {
		t.Fatal(err)
	}
	m := New(fs, clock.NewMock(), schedule.Policy{}, nil)
	ctx := context.Background()

	if m.SupportsHistory() {
		t.Error("local store reports history support")
	}
	if _, err := m.PullRequests(ctx); !errors.Is(err, apperr.ErrUnsupported) {
		t.Errorf("PullRequests err = %v", err)
	}
	if _, err := m.OpenPullRequest(ctx, remote.NewPullRequest{Base: "main", Head: "x", Title: "t"}); !errors.Is(err, apperr.ErrUnsupported) {
		t.Errorf("OpenPullRequest err = %v", err)
	}
	if _, err := m.Commits(ctx, "main", "", 0); !errors.Is(err, apperr.ErrUnsupported) {
		t.Errorf("Commits err = %v", err)
	}
}
