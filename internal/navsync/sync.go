// Package navsync decides which navigation tree each branch shows: the
// cached copy, the pending draft, or a fresh fetch from the remote, given the
// remote's propagation delay after a commit.
package navsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/contentcache"
	"github.com/starford/folio/internal/drafts"
	"github.com/starford/folio/internal/localstate"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/navtree"
)

// Policy defaults.
const (
	DefaultBlobPath        = "content/_navigation/navigation.json"
	DefaultStalenessWindow = 6 * time.Minute
	DefaultGraceWindow     = 6 * time.Minute
)

const lastCommitKey = "last_commit_time"

// Config holds the synchronizer policy.
type Config struct {
	BlobPath string
	// StalenessWindow is the maximum age of a remote fetch before the next
	// refresh goes back to the remote.
	StalenessWindow time.Duration
	// GraceWindow is how long after a commit a draft is trusted over the
	// freshly fetched remote tree.
	GraceWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.BlobPath == "" {
		c.BlobPath = DefaultBlobPath
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = DefaultStalenessWindow
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = DefaultGraceWindow
	}
	return c
}

// Status is the per-branch load state.
type Status struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Synchronizer owns the per-branch BranchStructure cache.
type Synchronizer struct {
	cfg    Config
	cache  *contentcache.Cache
	drafts *drafts.Store
	state  *localstate.DB
	locker *navtree.Locker
	clk    clock.Clock
	log    *slog.Logger
	group  singleflight.Group

	mu         sync.Mutex
	structures map[string]models.BranchStructure
	status     map[string]Status
	lastCommit time.Time
}

// New creates a synchronizer and reloads persisted structures.
func New(cfg Config, cache *contentcache.Cache, ds *drafts.Store, state *localstate.DB, locker *navtree.Locker, clk clock.Clock, log *slog.Logger) (*Synchronizer, error) {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Synchronizer{
		cfg:        cfg.withDefaults(),
		cache:      cache,
		drafts:     ds,
		state:      state,
		locker:     locker,
		clk:        clk,
		log:        log,
		structures: map[string]models.BranchStructure{},
		status:     map[string]Status{},
	}

	keys, err := state.Keys(localstate.NSNavigation)
	if err != nil {
		return nil, fmt.Errorf("navsync: load: %w", err)
	}
	for _, k := range keys {
		var bs models.BranchStructure
		if ok, err := state.Get(localstate.NSNavigation, k, &bs); err != nil {
			return nil, fmt.Errorf("navsync: load %s: %w", k, err)
		} else if ok {
			locker.Apply(&bs.Tree)
			s.structures[k] = bs
		}
	}
	if _, err := state.Get(localstate.NSSession, lastCommitKey, &s.lastCommit); err != nil {
		return nil, fmt.Errorf("navsync: load last commit: %w", err)
	}
	return s, nil
}

// BlobPath returns the repository path of the navigation blob.
func (s *Synchronizer) BlobPath() string { return s.cfg.BlobPath }

// GetStructure returns the cached tree for branch, or an empty tree.
func (s *Synchronizer) GetStructure(branch string) models.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bs, ok := s.structures[branch]; ok {
		return bs.Tree.Clone()
	}
	return models.Tree{Entries: []models.Entry{}}
}

// Structure returns the full cache entry for branch.
func (s *Synchronizer) Structure(branch string) (models.BranchStructure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.structures[branch]
	if ok {
		bs.Tree = bs.Tree.Clone()
	}
	return bs, ok
}

// Status returns the load state of branch.
func (s *Synchronizer) Status(branch string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[branch]
}

// Refresh brings the cached structure for branch up to date and returns it.
//
// A pending draft is served without touching the network unless force is
// set or the last remote fetch is older than the staleness window. A fresh
// cache is served as is. Otherwise the blob is fetched (concurrent callers
// for the same branch share one request) and reconciled with the draft: the
// draft wins while it holds uncommitted edits or the last commit is inside
// the grace window; a committed draft past the window is discarded.
//
// On failure the cache is left as it was, the branch status carries the
// error, and the previously cached tree is returned alongside it.
func (s *Synchronizer) Refresh(ctx context.Context, branch string, force bool) (models.Tree, error) {
	now := s.clk.Now()

	s.mu.Lock()
	bs, cached := s.structures[branch]
	stale := force || !cached || bs.LastRemoteFetchAt.IsZero() || now.Sub(bs.LastRemoteFetchAt) > s.cfg.StalenessWindow

	if d, ok := s.drafts.Get(branch); ok && !stale {
		bs.Branch = branch
		bs.Tree = d.Tree
		bs.LastFetchedAt = now
		s.storeLocked(bs)
		s.mu.Unlock()
		metrics.RecordRefresh("draft")
		return bs.Tree.Clone(), nil
	}
	if !stale && !bs.Tree.Empty() {
		s.mu.Unlock()
		metrics.RecordRefresh("cached")
		return bs.Tree.Clone(), nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(branch, func() (any, error) {
		return s.fetch(ctx, branch)
	})
	if err != nil {
		metrics.RecordRefresh("error")
		s.log.Warn("navsync: refresh failed",
			slog.String("branch", branch),
			slog.String("error", err.Error()))
		return s.GetStructure(branch), err
	}
	metrics.RecordRefresh("fetched")
	return v.(models.Tree).Clone(), nil
}

// fetch reads and parses the blob, reconciles it with the draft and stores
// the result.
func (s *Synchronizer) fetch(ctx context.Context, branch string) (models.Tree, error) {
	s.setStatus(branch, Status{Loading: true})

	remote, err := s.fetchRemote(ctx, branch)
	if err != nil {
		s.setStatus(branch, Status{Error: err.Error()})
		return models.Tree{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.adoptLocked(branch, remote, s.clk.Now())
	s.status[branch] = Status{}
	return result, nil
}

// adoptLocked stores a freshly read remote tree for branch, unless a
// draft must still be served over it.
func (s *Synchronizer) adoptLocked(branch string, remote models.Tree, at time.Time) models.Tree {
	result := remote
	if d, ok := s.drafts.Get(branch); ok {
		if s.keepDraftLocked(d, at) {
			result = d.Tree
			s.log.Debug("navsync: serving draft over remote", slog.String("branch", branch))
		} else {
			if err := s.drafts.Clear(branch); err != nil {
				s.log.Warn("navsync: clear superseded draft failed",
					slog.String("branch", branch),
					slog.String("error", err.Error()))
			}
			s.log.Info("navsync: draft superseded by remote", slog.String("branch", branch))
		}
	}
	s.storeLocked(models.BranchStructure{
		Branch:            branch,
		Tree:              result,
		LastFetchedAt:     at,
		LastRemoteFetchAt: at,
	})
	return result
}

// Reconcile rebuilds the structure of branch from the blob already held by
// the content cache, without a network call. The background poller uses it
// after observing a new blob.
func (s *Synchronizer) Reconcile(branch string) (models.Tree, error) {
	e, ok := s.cache.Get(s.cfg.BlobPath, branch)
	if !ok {
		return s.GetStructure(branch), nil
	}
	tree, err := navtree.Parse(e.Content, s.locker)
	if err != nil {
		return s.GetStructure(branch), fmt.Errorf("navsync: parse %s: %w", branch, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adoptLocked(branch, tree, e.LastFetched).Clone(), nil
}

// keepDraftLocked reports whether d should be served over a fresh remote
// tree. A draft saved after the last commit (or with no commit recorded)
// holds edits the remote has never seen.
func (s *Synchronizer) keepDraftLocked(d models.Draft, now time.Time) bool {
	if s.lastCommit.IsZero() || d.SavedAt.After(s.lastCommit) {
		return true
	}
	return now.Sub(s.lastCommit) <= s.cfg.GraceWindow
}

func (s *Synchronizer) fetchRemote(ctx context.Context, branch string) (models.Tree, error) {
	e, _, err := s.cache.Fetch(ctx, s.cfg.BlobPath, branch)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Tree{Entries: []models.Entry{}}, nil
	}
	if err != nil {
		return models.Tree{}, fmt.Errorf("navsync: fetch %s: %w", branch, err)
	}
	tree, err := navtree.Parse(e.Content, s.locker)
	if err != nil {
		return models.Tree{}, fmt.Errorf("navsync: parse %s: %w", branch, err)
	}
	return tree, nil
}

// ApplyDraft exposes tree as the current structure for branch without
// changing the remote fetch time.
func (s *Synchronizer) ApplyDraft(branch string, tree models.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs := s.structures[branch]
	bs.Branch = branch
	bs.Tree = tree.Clone()
	bs.LastFetchedAt = s.clk.Now()
	s.storeLocked(bs)
}

// RecordCommit starts the grace window.
func (s *Synchronizer) RecordCommit() time.Time {
	now := s.clk.Now()
	s.mu.Lock()
	s.lastCommit = now
	s.mu.Unlock()
	if err := s.state.Put(localstate.NSSession, lastCommitKey, now); err != nil {
		s.log.Warn("navsync: persist commit time failed", slog.String("error", err.Error()))
	}
	return now
}

// LastCommitTime returns the last recorded commit, zero when none.
func (s *Synchronizer) LastCommitTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommit
}

// ClearStructure drops the cached structure for branch.
func (s *Synchronizer) ClearStructure(branch string) {
	s.mu.Lock()
	delete(s.structures, branch)
	delete(s.status, branch)
	s.mu.Unlock()
	if err := s.state.Delete(localstate.NSNavigation, branch); err != nil {
		s.log.Warn("navsync: clear failed", slog.String("branch", branch), slog.String("error", err.Error()))
	}
}

// ClearAll drops every cached structure.
func (s *Synchronizer) ClearAll() {
	s.mu.Lock()
	s.structures = map[string]models.BranchStructure{}
	s.status = map[string]Status{}
	s.mu.Unlock()
	if err := s.state.DeleteNamespace(localstate.NSNavigation); err != nil {
		s.log.Warn("navsync: clear all failed", slog.String("error", err.Error()))
	}
}

func (s *Synchronizer) setStatus(branch string, st Status) {
	s.mu.Lock()
	s.status[branch] = st
	s.mu.Unlock()
}

func (s *Synchronizer) storeLocked(bs models.BranchStructure) {
	s.structures[bs.Branch] = bs
	if err := s.state.Put(localstate.NSNavigation, bs.Branch, bs); err != nil {
		s.log.Warn("navsync: persist failed",
			slog.String("branch", bs.Branch),
			slog.String("error", err.Error()))
	}
}
