// Package editor is the session facade the HTTP and MCP surfaces drive: it
// owns the current branch and edit mode and turns structural edits into
// drafts, commits and events.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/branches"
	"github.com/starford/folio/internal/contentcache"
	"github.com/starford/folio/internal/drafts"
	"github.com/starford/folio/internal/localstate"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/navsync"
	"github.com/starford/folio/internal/navtree"
	"github.com/starford/folio/internal/pages"
	"github.com/starford/folio/internal/persist"
	"github.com/starford/folio/internal/remote"
)

const (
	branchKey   = "branch"
	editModeKey = "edit_mode"
)

// DefaultBranch is selected when no branch has been chosen yet.
const DefaultBranch = "main"

// Deps are the collaborators of a Session.
type Deps struct {
	Sync          *navsync.Synchronizer
	Drafts        *drafts.Store
	PageDrafts    *drafts.PageStore
	Bridge        *persist.Bridge
	Pages         *pages.Service
	Branches      *branches.Manager
	Cache         *contentcache.Cache
	State         *localstate.DB
	Locker        *navtree.Locker
	Notifier      Notifier
	Log           *slog.Logger
	DefaultBranch string
}

// View is the navigation state of the current branch.
type View struct {
	Branch            string         `json:"branch"`
	Navigation        []models.Entry `json:"navigation"`
	EntryCount        int            `json:"entry_count"`
	HasDraft          bool           `json:"has_draft"`
	EditMode          bool           `json:"edit_mode"`
	Loading           bool           `json:"loading"`
	Error             string         `json:"error,omitempty"`
	LastFetchedAt     time.Time      `json:"last_fetched_at"`
	LastRemoteFetchAt time.Time      `json:"last_remote_fetch_at"`
	LastCommitTime    time.Time      `json:"last_commit_time"`
}

// Session serializes structural edits for one editing session.
type Session struct {
	d   Deps
	log *slog.Logger

	mu       sync.Mutex
	branch   string
	editMode bool
}

// New restores the persisted branch and edit mode.
func New(d Deps) (*Session, error) {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.DefaultBranch == "" {
		d.DefaultBranch = DefaultBranch
	}
	s := &Session{d: d, log: d.Log}

	if _, err := d.State.Get(localstate.NSSession, branchKey, &s.branch); err != nil {
		return nil, fmt.Errorf("editor: load branch: %w", err)
	}
	if s.branch == "" {
		s.branch = d.DefaultBranch
	}
	if _, err := d.State.Get(localstate.NSSession, editModeKey, &s.editMode); err != nil {
		return nil, fmt.Errorf("editor: load edit mode: %w", err)
	}
	if _, err := d.Drafts.ObserveBranch(s.branch); err != nil {
		return nil, err
	}
	return s, nil
}

// Branch returns the current branch.
func (s *Session) Branch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.branch
}

// EditMode reports whether structural editing is enabled.
func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// SetEditMode toggles edit mode.
func (s *Session) SetEditMode(on bool) (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setEditModeLocked(on); err != nil {
		return failure(err), err
	}
	if on {
		return info("Edit mode on", "Structural changes are saved as a draft until you commit."), nil
	}
	return info("Edit mode off", ""), nil
}

func (s *Session) setEditModeLocked(on bool) error {
	if err := s.d.State.Put(localstate.NSSession, editModeKey, on); err != nil {
		return fmt.Errorf("editor: save edit mode: %w", err)
	}
	changed := s.editMode != on
	s.editMode = on
	if changed {
		s.d.Notifier.Notify(EventEditModeChanged, map[string]any{"edit_mode": on})
	}
	return nil
}

// Structure returns the cached navigation of the current branch without
// touching the network.
func (s *Session) Structure() View {
	s.mu.Lock()
	branch, editMode := s.branch, s.editMode
	s.mu.Unlock()

	tree := s.d.Sync.GetStructure(branch)
	v := View{
		Branch:         branch,
		Navigation:     tree.Entries,
		EntryCount:     navtree.Count(tree),
		EditMode:       editMode,
		LastCommitTime: s.d.Sync.LastCommitTime(),
	}
	if bs, ok := s.d.Sync.Structure(branch); ok {
		v.LastFetchedAt = bs.LastFetchedAt
		v.LastRemoteFetchAt = bs.LastRemoteFetchAt
	}
	_, v.HasDraft = s.d.Drafts.Get(branch)
	st := s.d.Sync.Status(branch)
	v.Loading, v.Error = st.Loading, st.Error
	return v
}

// Refresh updates the current branch's structure. Failures keep the cached
// tree and come back as an error Signal.
func (s *Session) Refresh(ctx context.Context, force bool) (View, Signal, error) {
	branch := s.Branch()
	if _, err := s.d.Sync.Refresh(ctx, branch, force); err != nil {
		return s.Structure(), failure(err), err
	}
	s.d.Notifier.Notify(EventNavigationUpdated, map[string]any{"branch": branch})
	return s.Structure(), info("Navigation refreshed", ""), nil
}

// InsertFile adds a file entry under parentPath and creates its backing page.
func (s *Session) InsertFile(ctx context.Context, parentPath, title string) (models.Entry, Signal, error) {
	return s.insert(ctx, parentPath, title, false)
}

// InsertDirectory adds a directory entry under parentPath and creates its
// placeholder.
func (s *Session) InsertDirectory(ctx context.Context, parentPath, title string) (models.Entry, Signal, error) {
	return s.insert(ctx, parentPath, title, true)
}

func (s *Session) insert(ctx context.Context, parentPath, title string, dir bool) (models.Entry, Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentPath == "" {
		parentPath = navtree.RootPath
	}
	if parentPath != navtree.RootPath && s.d.Locker.IsLocked(parentPath) {
		err := fmt.Errorf("editor: insert under %s: %w", parentPath, apperr.ErrLocked)
		return models.Entry{}, failure(err), err
	}

	base, err := s.workingTreeLocked(ctx)
	if err != nil {
		return models.Entry{}, failure(err), err
	}
	var (
		tree  models.Tree
		entry models.Entry
	)
	if dir {
		tree, entry, err = navtree.InsertDirectory(base, parentPath, title)
	} else {
		tree, entry, err = navtree.InsertFile(base, parentPath, title)
	}
	if err != nil {
		return models.Entry{}, failure(err), err
	}
	if s.d.Locker.IsLocked(entry.Path) {
		err := fmt.Errorf("editor: insert %s: %w", entry.Path, apperr.ErrLocked)
		return models.Entry{}, failure(err), err
	}
	if err := s.saveDraftLocked(tree); err != nil {
		return models.Entry{}, failure(err), err
	}

	kind := "File"
	if dir {
		kind = "Folder"
	}
	if _, err := s.d.Pages.CreatePlaceholder(ctx, entry.Path, title, s.branch, dir); err != nil {
		s.log.Warn("editor: placeholder not created",
			slog.String("path", entry.Path),
			slog.String("branch", s.branch),
			slog.String("error", err.Error()))
		return entry, warning(kind+" added to navigation", "The backing file could not be created: "+err.Error()), nil
	}
	return entry, success(kind+" added", fmt.Sprintf("Added %q. Commit to publish the navigation change.", title)), nil
}

// MoveUp moves the entry at path one position up within its folder.
func (s *Session) MoveUp(ctx context.Context, path string) (Signal, error) {
	return s.move(ctx, path, navtree.MoveUp)
}

// MoveDown moves the entry at path one position down within its folder.
func (s *Session) MoveDown(ctx context.Context, path string) (Signal, error) {
	return s.move(ctx, path, navtree.MoveDown)
}

func (s *Session) move(ctx context.Context, path string, fn func(models.Tree, string) (models.Tree, navtree.Outcome, error)) (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.d.Locker.IsLocked(path) {
		err := fmt.Errorf("editor: move %s: %w", path, apperr.ErrLocked)
		return failure(err), err
	}
	base, err := s.workingTreeLocked(ctx)
	if err != nil {
		return failure(err), err
	}
	tree, outcome, err := fn(base, path)
	if err != nil {
		return failure(err), err
	}
	switch outcome {
	case navtree.AlreadyFirst:
		return info("Already at the top", ""), nil
	case navtree.AlreadyLast:
		return info("Already at the bottom", ""), nil
	case navtree.Unchanged:
		return info("Order unchanged", "Folders always stay above files."), nil
	}
	if err := s.saveDraftLocked(tree); err != nil {
		return failure(err), err
	}
	return success("Moved", ""), nil
}

// workingTreeLocked returns the tree edits apply to: the draft when there is
// one, else the cached structure, loading it first if the branch has never
// been fetched.
func (s *Session) workingTreeLocked(ctx context.Context) (models.Tree, error) {
	if d, ok := s.d.Drafts.Get(s.branch); ok {
		return d.Tree, nil
	}
	if _, ok := s.d.Sync.Structure(s.branch); !ok {
		if _, err := s.d.Sync.Refresh(ctx, s.branch, false); err != nil {
			return models.Tree{}, err
		}
	}
	return s.d.Sync.GetStructure(s.branch), nil
}

func (s *Session) saveDraftLocked(tree models.Tree) error {
	s.d.Locker.Apply(&tree)
	d, err := s.d.Drafts.Save(s.branch, tree)
	if err != nil {
		return err
	}
	s.d.Sync.ApplyDraft(s.branch, d.Tree)
	s.d.Notifier.Notify(EventDraftSaved, map[string]any{"branch": s.branch, "saved_at": d.SavedAt})
	s.d.Notifier.Notify(EventNavigationUpdated, map[string]any{"branch": s.branch})
	return nil
}

// Commit publishes the current branch's draft.
func (s *Session) Commit(ctx context.Context) (persist.Result, Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.d.Bridge.Commit(ctx, s.branch)
	if err != nil {
		return persist.Result{}, failure(err), err
	}
	s.d.Notifier.Notify(EventNavigationCommitted, res)
	return res, success("Navigation committed", "GitHub may take a few minutes to serve the new structure."), nil
}

// DiscardAndReload drops every draft and cached structure, then fetches the
// current branch from the remote.
func (s *Session) DiscardAndReload(ctx context.Context) (View, Signal, error) {
	s.mu.Lock()
	branch := s.branch
	err := s.d.Drafts.ClearAll()
	if err == nil {
		s.d.Sync.ClearAll()
		s.d.Cache.Forget(s.d.Sync.BlobPath(), branch)
		s.d.Notifier.Notify(EventDraftCleared, map[string]any{"branch": branch})
	}
	s.mu.Unlock()
	if err != nil {
		return s.Structure(), failure(err), err
	}

	if _, err := s.d.Sync.Refresh(ctx, branch, true); err != nil {
		return s.Structure(), failure(err), err
	}
	s.d.Notifier.Notify(EventNavigationUpdated, map[string]any{"branch": branch})
	return s.Structure(), success("Reloaded from GitHub", "Local changes were discarded."), nil
}

// SwitchBranch makes name the current branch. Drafts are dropped, edit mode
// ends and the branch is fetched fresh.
func (s *Session) SwitchBranch(ctx context.Context, name string) (Signal, error) {
	s.mu.Lock()
	err := s.switchLocked(name)
	s.mu.Unlock()
	if err != nil {
		return failure(err), err
	}
	if _, err := s.d.Sync.Refresh(ctx, name, true); err != nil {
		return failure(err), err
	}
	s.d.Notifier.Notify(EventNavigationUpdated, map[string]any{"branch": name})
	return success("Switched branch", "Now editing "+name+"."), nil
}

func (s *Session) switchLocked(name string) error {
	if name == "" {
		return fmt.Errorf("editor: %w: empty branch", apperr.ErrInvalidName)
	}
	if err := s.d.State.Put(localstate.NSSession, branchKey, name); err != nil {
		return fmt.Errorf("editor: save branch: %w", err)
	}
	prev := s.branch
	s.branch = name
	cleared, err := s.d.Drafts.ObserveBranch(name)
	if err != nil {
		return err
	}
	if cleared {
		s.d.Notifier.Notify(EventDraftCleared, map[string]any{"branch": prev})
	}
	if err := s.setEditModeLocked(false); err != nil {
		return err
	}
	if prev != name {
		s.d.Notifier.Notify(EventBranchChanged, map[string]any{"from": prev, "to": name})
	}
	return nil
}

// Find returns the entry at path in the current structure.
func (s *Session) Find(path string) (models.Entry, bool) {
	return navtree.Find(s.d.Sync.GetStructure(s.Branch()), path)
}

// Breadcrumbs returns the entries leading to path in the current structure.
func (s *Session) Breadcrumbs(path string) []models.Entry {
	return navtree.Breadcrumbs(s.d.Sync.GetStructure(s.Branch()), path)
}

// ListBranches returns every branch name.
func (s *Session) ListBranches(ctx context.Context) ([]string, error) {
	return s.d.Branches.List(ctx)
}

// CreateBranch branches name off the current branch and switches to it.
// A branch that is not visible yet after the confirmation budget still
// becomes current, with a warning.
func (s *Session) CreateBranch(ctx context.Context, name string) (Signal, error) {
	src := s.Branch()
	return s.adoptBranch(ctx, src, name, s.d.Branches.Create(ctx, name, src))
}

// DuplicateBranch copies src to dst and switches to dst.
func (s *Session) DuplicateBranch(ctx context.Context, src, dst string) (Signal, error) {
	return s.adoptBranch(ctx, src, dst, s.d.Branches.Duplicate(ctx, src, dst))
}

func (s *Session) adoptBranch(ctx context.Context, src, dst string, err error) (Signal, error) {
	pending := errors.Is(err, apperr.ErrEventualConsistencyTimeout)
	if err != nil && !pending {
		return failure(err), err
	}
	s.d.Notifier.Notify(EventBranchCreated, map[string]any{"branch": dst, "from": src, "confirmed": !pending})

	sig, err := s.SwitchBranch(ctx, dst)
	if pending {
		return warning("Branch created", dst+" might still be processing on GitHub. Refresh in a minute if it is missing."), nil
	}
	if err != nil {
		return sig, err
	}
	return success("Branch created", "Now editing "+dst+"."), nil
}

// DeleteBranch removes name. The current branch cannot be deleted.
func (s *Session) DeleteBranch(ctx context.Context, name string) (Signal, error) {
	if name == s.Branch() {
		err := fmt.Errorf("editor: delete %s: %w: branch is checked out", name, apperr.ErrConflict)
		return failure(err), err
	}
	err := s.d.Branches.Delete(ctx, name)
	pending := errors.Is(err, apperr.ErrEventualConsistencyTimeout)
	if err != nil && !pending {
		return failure(err), err
	}
	s.d.Cache.ForgetBranch(name)
	s.d.Sync.ClearStructure(name)
	if err := s.d.Drafts.Clear(name); err != nil {
		s.log.Warn("editor: clear draft of deleted branch failed", slog.String("branch", name), slog.String("error", err.Error()))
	}
	if _, err := s.d.PageDrafts.ClearBranch(name); err != nil {
		s.log.Warn("editor: clear page drafts of deleted branch failed", slog.String("branch", name), slog.String("error", err.Error()))
	}
	s.d.Notifier.Notify(EventBranchDeleted, map[string]any{"branch": name, "confirmed": !pending})
	if pending {
		return warning("Branch deleted", name+" might still be listed for a few minutes."), nil
	}
	return success("Branch deleted", ""), nil
}

// GetPage returns a page on the current branch with its unsaved draft.
func (s *Session) GetPage(ctx context.Context, route string) (*pages.Page, error) {
	branch := s.Branch()
	p, err := s.d.Pages.Get(ctx, route, branch)
	if err != nil {
		return nil, err
	}
	d, ok, err := s.d.PageDrafts.Get(branch, p.Route)
	if err != nil {
		s.log.Warn("editor: load page draft failed", slog.String("route", p.Route), slog.String("error", err.Error()))
	} else if ok {
		p.Draft = &d
	}
	return p, nil
}

// SavePage writes a page on the current branch and drops its draft.
func (s *Session) SavePage(ctx context.Context, route string, content []byte, ifMatch string) (*pages.Page, Signal, error) {
	branch := s.Branch()
	p, err := s.d.Pages.Save(ctx, route, branch, content, ifMatch)
	if err != nil {
		return nil, failure(err), err
	}
	s.d.Notifier.Notify(EventContentChanged, map[string]any{"branch": branch, "path": p.RepoPath, "route": p.Route, "sha": p.SHA})
	if _, ok, _ := s.d.PageDrafts.Get(branch, p.Route); ok {
		if err := s.d.PageDrafts.Clear(branch, p.Route); err != nil {
			s.log.Warn("editor: clear saved page draft failed", slog.String("route", p.Route), slog.String("error", err.Error()))
		} else {
			s.d.Notifier.Notify(EventPageDraftCleared, map[string]any{"branch": branch, "route": p.Route})
		}
	}
	return p, success("Page saved", ""), nil
}

// DeletePage removes the page at route on the current branch, or with dir
// everything under the folder at route.
func (s *Session) DeletePage(ctx context.Context, route string, dir bool) ([]string, Signal, error) {
	branch := s.Branch()
	deleted, err := s.d.Pages.Delete(ctx, route, branch, dir)
	if len(deleted) > 0 {
		s.d.Notifier.Notify(EventContentDeleted, map[string]any{"branch": branch, "route": pageRoute(route), "paths": deleted})
	}
	if err != nil {
		return deleted, failure(err), err
	}
	if err := s.d.PageDrafts.Clear(branch, pageRoute(route)); err != nil {
		s.log.Warn("editor: clear draft of deleted page failed", slog.String("route", route), slog.String("error", err.Error()))
	}
	if dir {
		return deleted, success("Folder deleted", fmt.Sprintf("Removed %d files.", len(deleted))), nil
	}
	return deleted, success("Page deleted", ""), nil
}

// SavePageDraft keeps unsaved body text for route on the current branch.
func (s *Session) SavePageDraft(route, content string) (models.PageDraft, Signal, error) {
	if strings.Trim(route, "/") == "" {
		err := fmt.Errorf("editor: page draft: %w: empty route", apperr.ErrInvalidName)
		return models.PageDraft{}, failure(err), err
	}
	branch := s.Branch()
	d, err := s.d.PageDrafts.Save(branch, pageRoute(route), content)
	if err != nil {
		return models.PageDraft{}, failure(err), err
	}
	s.d.Notifier.Notify(EventPageDraftSaved, map[string]any{"branch": branch, "route": d.Route, "saved_at": d.SavedAt})
	return d, info("Draft saved", ""), nil
}

// DiscardPageDraft drops the draft for route on the current branch.
func (s *Session) DiscardPageDraft(route string) (Signal, error) {
	branch := s.Branch()
	if err := s.d.PageDrafts.Clear(branch, pageRoute(route)); err != nil {
		return failure(err), err
	}
	s.d.Notifier.Notify(EventPageDraftCleared, map[string]any{"branch": branch, "route": pageRoute(route)})
	return info("Draft discarded", ""), nil
}

// PageDrafts lists the page drafts on the current branch.
func (s *Session) PageDrafts() ([]models.PageDraft, error) {
	return s.d.PageDrafts.List(s.Branch())
}

func pageRoute(route string) string {
	return "/" + strings.Trim(route, "/")
}

// PullRequests returns the open pull requests.
func (s *Session) PullRequests(ctx context.Context) ([]remote.PullRequest, error) {
	return s.d.Branches.PullRequests(ctx)
}

// OpenPullRequest asks to merge head into base. An empty head means the
// current branch.
func (s *Session) OpenPullRequest(ctx context.Context, base, head, title, body string) (remote.PullRequest, Signal, error) {
	if head == "" {
		head = s.Branch()
	}
	pr, err := s.d.Branches.OpenPullRequest(ctx, remote.NewPullRequest{Base: base, Head: head, Title: title, Body: body})
	if err != nil {
		return remote.PullRequest{}, failure(err), err
	}
	s.d.Notifier.Notify(EventPullRequestOpened, pr)
	return pr, success("Pull request opened", fmt.Sprintf("#%d merges %s into %s.", pr.Number, head, base)), nil
}

// Commits returns recent commits on branch, the current one when empty,
// optionally limited to the file behind route.
func (s *Session) Commits(ctx context.Context, branch, route string, limit int) ([]remote.Commit, error) {
	if branch == "" {
		branch = s.Branch()
	}
	var path string
	if strings.Trim(route, "/") != "" {
		path = s.d.Pages.RepoPath(route)
	}
	return s.d.Branches.Commits(ctx, branch, path, limit)
}

// ContentChanged reacts to new remote content observed by the poller or
// the local store watcher. A new navigation blob on the current branch is
// adopted from the content cache.
func (s *Session) ContentChanged(path, branch string) {
	if path != s.d.Sync.BlobPath() {
		s.d.Notifier.Notify(EventContentChanged, map[string]any{"branch": branch, "path": path, "route": s.d.Pages.Route(path)})
		return
	}
	s.d.Notifier.Notify(EventContentChanged, map[string]any{"branch": branch, "path": path})
	if branch != s.Branch() {
		return
	}
	if _, err := s.d.Sync.Reconcile(branch); err != nil {
		s.log.Warn("editor: adopt remote navigation failed",
			slog.String("branch", branch),
			slog.String("error", err.Error()))
		return
	}
	s.d.Notifier.Notify(EventNavigationUpdated, map[string]any{"branch": branch})
}
