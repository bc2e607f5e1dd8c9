// Package contentcache keeps the last fetched version of every (path, branch)
// pair and the content of recent local commits, so reads stay consistent
// while GitHub's CDN catches up.
package contentcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/localstate"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/schedule"
)

// DefaultSize bounds the in-memory front of the cache.
const DefaultSize = 512

// Entry is the cached content for one (path, branch).
type Entry struct {
	Path        string    `json:"path"`
	Branch      string    `json:"branch"`
	Content     []byte    `json:"content"`
	SHA         string    `json:"sha"`
	LastFetched time.Time `json:"last_fetched"`
}

// Commit records content this process wrote to the remote.
type Commit struct {
	Path    string    `json:"path"`
	Branch  string    `json:"branch"`
	Content []byte    `json:"content"`
	SHA     string    `json:"sha"`
	At      time.Time `json:"at"`
}

// ChangeFunc is called when a fetch observes new content for a pair.
type ChangeFunc func(path, branch string)

// Cache is safe for concurrent use.
type Cache struct {
	store remote.Store
	state *localstate.DB
	clk   clock.Clock
	log   *slog.Logger
	front *lru.Cache[string, Entry]

	mu        sync.Mutex
	requested map[string]struct{}
	onChange  ChangeFunc
	poller    *schedule.Poller
}

// New creates a cache of at most size in-memory entries backed by state.
func New(store remote.Store, state *localstate.DB, clk clock.Clock, size int, log *slog.Logger) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	front, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("contentcache: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		store:     store,
		state:     state,
		clk:       clk,
		log:       log,
		front:     front,
		requested: map[string]struct{}{},
	}, nil
}

func key(path, branch string) string {
	return branch + ":" + path
}

func splitKey(k string) (path, branch string) {
	branch, path, _ = strings.Cut(k, ":")
	return path, branch
}

// OnChange registers the callback fired when a fetch returns content that
// differs from what was cached.
func (c *Cache) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Fetch reads path from the remote and compares it with the cached copy.
// Unchanged content only bumps LastFetched. The pair is remembered for
// background polling. changed is true when the content differs from the
// previous cached copy.
func (c *Cache) Fetch(ctx context.Context, path, branch string) (Entry, bool, error) {
	k := key(path, branch)
	c.mu.Lock()
	c.requested[k] = struct{}{}
	c.mu.Unlock()

	f, err := c.store.GetFile(ctx, path, branch)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.drop(k)
		}
		return Entry{}, false, err
	}

	now := c.clk.Now()
	prev, had := c.Get(path, branch)
	if had && prev.SHA == f.SHA {
		prev.LastFetched = now
		c.put(k, prev)
		return prev, false, nil
	}
	e := Entry{Path: path, Branch: branch, Content: f.Content, SHA: f.SHA, LastFetched: now}
	c.put(k, e)
	if had {
		c.notify(path, branch)
	}
	return e, had, nil
}

// Get returns the cached entry without touching the remote.
func (c *Cache) Get(path, branch string) (Entry, bool) {
	k := key(path, branch)
	if e, ok := c.front.Get(k); ok {
		return e, true
	}
	var e Entry
	ok, err := c.state.Get(localstate.NSContent, k, &e)
	if err != nil {
		c.log.Warn("contentcache: load failed", slog.String("key", k), slog.String("error", err.Error()))
		return Entry{}, false
	}
	if ok {
		c.front.Add(k, e)
	}
	return e, ok
}

// KnownHash returns the blob id to use as the expected base for the next
// write: the last commit by this process, else the last fetched version.
func (c *Cache) KnownHash(path, branch string) string {
	if cm, ok := c.Committed(path, branch); ok {
		return cm.SHA
	}
	if e, ok := c.Get(path, branch); ok {
		return e.SHA
	}
	return ""
}

// Forget drops the cached content and any commit record for the pair.
func (c *Cache) Forget(path, branch string) {
	k := key(path, branch)
	c.drop(k)
	c.ClearCommit(path, branch)
}

// ForgetBranch drops every cached pair on branch.
func (c *Cache) ForgetBranch(branch string) {
	for _, k := range c.front.Keys() {
		if _, b := splitKey(k); b == branch {
			c.front.Remove(k)
		}
	}
	for _, ns := range []string{localstate.NSContent, localstate.NSCommit} {
		keys, err := c.state.Keys(ns)
		if err != nil {
			c.log.Warn("contentcache: list keys failed", slog.String("error", err.Error()))
			continue
		}
		for _, k := range keys {
			if _, b := splitKey(k); b == branch {
				_ = c.state.Delete(ns, k)
			}
		}
	}
	c.mu.Lock()
	for k := range c.requested {
		if _, b := splitKey(k); b == branch {
			delete(c.requested, k)
		}
	}
	c.mu.Unlock()
}

// RecordCommit stores content just written to the remote along with its new
// blob id. It also becomes the cached version of the pair.
func (c *Cache) RecordCommit(path, branch string, content []byte, sha string) {
	k := key(path, branch)
	now := c.clk.Now()
	cm := Commit{Path: path, Branch: branch, Content: content, SHA: sha, At: now}
	if err := c.state.Put(localstate.NSCommit, k, cm); err != nil {
		c.log.Warn("contentcache: persist commit failed", slog.String("key", k), slog.String("error", err.Error()))
	}
	c.put(k, Entry{Path: path, Branch: branch, Content: content, SHA: sha, LastFetched: now})
}

// Committed returns the last commit record for the pair.
func (c *Cache) Committed(path, branch string) (Commit, bool) {
	var cm Commit
	ok, err := c.state.Get(localstate.NSCommit, key(path, branch), &cm)
	if err != nil {
		c.log.Warn("contentcache: load commit failed", slog.String("error", err.Error()))
		return Commit{}, false
	}
	return cm, ok
}

// ClearCommit forgets the commit record for the pair.
func (c *Cache) ClearCommit(path, branch string) {
	if err := c.state.Delete(localstate.NSCommit, key(path, branch)); err != nil {
		c.log.Warn("contentcache: clear commit failed", slog.String("error", err.Error()))
	}
}

// Requested returns every pair fetched since startup, sorted by key.
func (c *Cache) Requested() [][2]string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.requested))
	for k := range c.requested {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	out := make([][2]string, len(keys))
	for i, k := range keys {
		p, b := splitKey(k)
		out[i] = [2]string{p, b}
	}
	return out
}

func (c *Cache) put(k string, e Entry) {
	c.front.Add(k, e)
	if err := c.state.Put(localstate.NSContent, k, e); err != nil {
		c.log.Warn("contentcache: persist failed", slog.String("key", k), slog.String("error", err.Error()))
	}
}

func (c *Cache) drop(k string) {
	c.front.Remove(k)
	if err := c.state.Delete(localstate.NSContent, k); err != nil {
		c.log.Warn("contentcache: delete failed", slog.String("key", k), slog.String("error", err.Error()))
	}
}

func (c *Cache) notify(path, branch string) {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(path, branch)
	}
}
