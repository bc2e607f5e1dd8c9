// Package drafts holds one pending navigation tree per branch. Drafts are
// written through to the local state database and reloaded at startup.
package drafts

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/localstate"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/models"
)

const activeBranchKey = "draft_branch"

// Store is safe for concurrent use.
type Store struct {
	state *localstate.DB
	clk   clock.Clock
	log   *slog.Logger

	mu     sync.Mutex
	drafts map[string]models.Draft
	active string
}

// New loads persisted drafts and the last observed branch.
func New(state *localstate.DB, clk clock.Clock, log *slog.Logger) (*Store, error) {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{state: state, clk: clk, log: log, drafts: map[string]models.Draft{}}

	keys, err := state.Keys(localstate.NSDraft)
	if err != nil {
		return nil, fmt.Errorf("drafts: load: %w", err)
	}
	for _, k := range keys {
		var d models.Draft
		if ok, err := state.Get(localstate.NSDraft, k, &d); err != nil {
			return nil, fmt.Errorf("drafts: load %s: %w", k, err)
		} else if ok {
			s.drafts[k] = d
		}
	}
	if _, err := state.Get(localstate.NSSession, activeBranchKey, &s.active); err != nil {
		return nil, fmt.Errorf("drafts: load active branch: %w", err)
	}
	return s, nil
}

// Save overwrites the draft for branch with a copy of tree.
func (s *Store) Save(branch string, tree models.Tree) (models.Draft, error) {
	d := models.Draft{Branch: branch, Tree: tree.Clone(), SavedAt: s.clk.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Put(localstate.NSDraft, branch, d); err != nil {
		return models.Draft{}, fmt.Errorf("drafts: save %s: %w", branch, err)
	}
	s.drafts[branch] = d
	metrics.RecordDraftSaved()
	s.log.Debug("drafts: saved", slog.String("branch", branch))
	return d, nil
}

// Get returns a copy of the draft for branch.
func (s *Store) Get(branch string) (models.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[branch]
	if !ok {
		return models.Draft{}, false
	}
	d.Tree = d.Tree.Clone()
	return d, true
}

// Clear removes the draft for branch. Clearing a missing draft is a no-op.
func (s *Store) Clear(branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Delete(localstate.NSDraft, branch); err != nil {
		return fmt.Errorf("drafts: clear %s: %w", branch, err)
	}
	if _, ok := s.drafts[branch]; ok {
		delete(s.drafts, branch)
		s.log.Debug("drafts: cleared", slog.String("branch", branch))
	}
	return nil
}

// ClearAll removes every draft.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearAllLocked()
}

func (s *Store) clearAllLocked() error {
	if err := s.state.DeleteNamespace(localstate.NSDraft); err != nil {
		return fmt.Errorf("drafts: clear all: %w", err)
	}
	s.drafts = map[string]models.Draft{}
	return nil
}

// HasDraftChanges reports whether the active branch has a pending draft.
func (s *Store) HasDraftChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[s.active]
	return ok
}

// ObserveBranch records the currently selected branch. When it differs from
// the previously observed one every draft is dropped and changed is true.
// The first observation never clears.
func (s *Store) ObserveBranch(branch string) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if branch == s.active {
		return false, nil
	}
	prev := s.active
	if prev != "" {
		if err := s.clearAllLocked(); err != nil {
			return false, err
		}
		s.log.Info("drafts: branch changed, drafts cleared",
			slog.String("from", prev),
			slog.String("to", branch))
	}
	if err := s.state.Put(localstate.NSSession, activeBranchKey, branch); err != nil {
		return false, fmt.Errorf("drafts: record branch: %w", err)
	}
	s.active = branch
	return prev != "", nil
}
