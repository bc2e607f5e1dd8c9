package drafts

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/localstate"
	"github.com/starford/folio/internal/models"
)

// PageStore keeps unsaved page bodies keyed by branch and route. Branch
// switches leave them alone; they go away when the page is saved, the draft
// is discarded or the branch is deleted.
type PageStore struct {
	state *localstate.DB
	clk   clock.Clock
	log   *slog.Logger
}

// NewPageStore returns a PageStore over state.
func NewPageStore(state *localstate.DB, clk clock.Clock, log *slog.Logger) *PageStore {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &PageStore{state: state, clk: clk, log: log}
}

// Git refuses ':' in ref names, so it cannot appear in a branch.
func pageKey(branch, route string) string {
	return branch + ":" + route
}

// Save overwrites the draft for route on branch.
func (s *PageStore) Save(branch, route, content string) (models.PageDraft, error) {
	d := models.PageDraft{Route: route, Branch: branch, Content: content, SavedAt: s.clk.Now()}
	if err := s.state.Put(localstate.NSPageDraft, pageKey(branch, route), d); err != nil {
		return models.PageDraft{}, fmt.Errorf("drafts: save page %s on %s: %w", route, branch, err)
	}
	s.log.Debug("drafts: page saved", slog.String("branch", branch), slog.String("route", route))
	return d, nil
}

// Get returns the draft for route on branch.
func (s *PageStore) Get(branch, route string) (models.PageDraft, bool, error) {
	var d models.PageDraft
	ok, err := s.state.Get(localstate.NSPageDraft, pageKey(branch, route), &d)
	if err != nil {
		return models.PageDraft{}, false, fmt.Errorf("drafts: get page %s on %s: %w", route, branch, err)
	}
	return d, ok, nil
}

// Clear removes the draft for route on branch. A missing draft is a no-op.
func (s *PageStore) Clear(branch, route string) error {
	if err := s.state.Delete(localstate.NSPageDraft, pageKey(branch, route)); err != nil {
		return fmt.Errorf("drafts: clear page %s on %s: %w", route, branch, err)
	}
	return nil
}

// List returns the drafts on branch ordered by route.
func (s *PageStore) List(branch string) ([]models.PageDraft, error) {
	keys, err := s.state.Keys(localstate.NSPageDraft)
	if err != nil {
		return nil, fmt.Errorf("drafts: list pages on %s: %w", branch, err)
	}
	prefix := pageKey(branch, "")
	out := []models.PageDraft{}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		var d models.PageDraft
		if ok, err := s.state.Get(localstate.NSPageDraft, k, &d); err != nil {
			return nil, fmt.Errorf("drafts: load page %s: %w", k, err)
		} else if ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out, nil
}

// ClearBranch removes every draft on branch and returns how many it dropped.
func (s *PageStore) ClearBranch(branch string) (int, error) {
	list, err := s.List(branch)
	if err != nil {
		return 0, err
	}
	for _, d := range list {
		if err := s.Clear(branch, d.Route); err != nil {
			return 0, err
		}
	}
	if len(list) > 0 {
		s.log.Info("drafts: page drafts dropped", slog.String("branch", branch), slog.Int("count", len(list)))
	}
	return len(list), nil
}
