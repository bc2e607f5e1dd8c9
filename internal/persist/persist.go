// Package persist commits navigation drafts to the remote store.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/contentcache"
	"github.com/starford/folio/internal/drafts"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/navsync"
	"github.com/starford/folio/internal/navtree"
	"github.com/starford/folio/internal/remote"
)

// CommitMessage is used for every navigation commit.
const CommitMessage = "Update navigation structure"

// Result describes a successful commit.
type Result struct {
	Branch      string    `json:"branch"`
	SHA         string    `json:"sha"`
	CommittedAt time.Time `json:"committed_at"`
}

// Bridge writes drafts to the remote and starts the synchronizer's grace
// window.
type Bridge struct {
	store  remote.Store
	cache  *contentcache.Cache
	drafts *drafts.Store
	sync   *navsync.Synchronizer
	log    *slog.Logger
}

// New creates a Bridge.
func New(store remote.Store, cache *contentcache.Cache, ds *drafts.Store, sync *navsync.Synchronizer, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{store: store, cache: cache, drafts: ds, sync: sync, log: log}
}

// Commit writes the draft for branch as the navigation blob. The draft is
// kept on success so the synchronizer can keep serving it while the remote
// catches up, and on failure so nothing is lost.
func (b *Bridge) Commit(ctx context.Context, branch string) (res Result, err error) {
	defer func() { metrics.RecordCommit("navigation", err) }()

	d, ok := b.drafts.Get(branch)
	if !ok {
		return Result{}, fmt.Errorf("persist: commit %s: %w", branch, apperr.ErrNoPendingChanges)
	}
	data, err := navtree.Marshal(d.Tree)
	if err != nil {
		return Result{}, fmt.Errorf("persist: commit %s: %w: %v", branch, apperr.ErrCommitFailed, err)
	}

	path := b.sync.BlobPath()
	base, err := b.baseHash(ctx, path, branch)
	if err != nil {
		return Result{}, fmt.Errorf("persist: commit %s: %w: %v", branch, apperr.ErrCommitFailed, err)
	}

	sha, err := b.store.PutFile(ctx, remote.PutRequest{
		Path:    path,
		Branch:  branch,
		Content: data,
		SHA:     base,
		Message: CommitMessage,
	})
	switch {
	case errors.Is(err, apperr.ErrConflict):
		b.cache.Forget(path, branch)
		b.log.Warn("persist: navigation write conflict", slog.String("branch", branch))
		return Result{}, fmt.Errorf("persist: commit %s: %w", branch, apperr.ErrWriteConflict)
	case err != nil:
		b.log.Error("persist: navigation commit failed",
			slog.String("branch", branch),
			slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("persist: commit %s: %w: %v", branch, apperr.ErrCommitFailed, err)
	}

	b.cache.RecordCommit(path, branch, data, sha)
	at := b.sync.RecordCommit()
	b.sync.ApplyDraft(branch, d.Tree)
	b.log.Info("persist: navigation committed",
		slog.String("branch", branch),
		slog.String("sha", sha))
	return Result{Branch: branch, SHA: sha, CommittedAt: at}, nil
}

// baseHash returns the blob id the write should replace: the cached one
// when known, else whatever the remote holds now. A missing blob yields "".
func (b *Bridge) baseHash(ctx context.Context, path, branch string) (string, error) {
	if h := b.cache.KnownHash(path, branch); h != "" {
		return h, nil
	}
	f, err := b.store.GetFile(ctx, path, branch)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return f.SHA, nil
}
