// Package branches creates, duplicates and deletes content branches and
// waits for the remote to report the change.
package branches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/schedule"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// Manager runs branch lifecycle operations against the remote store.
type Manager struct {
	store   remote.Store
	history remote.History // nil when the store keeps no git history
	clk     clock.Clock
	policy  schedule.Policy
	log     *slog.Logger
}

// New creates a Manager. A zero policy uses schedule.DefaultPolicy.
func New(store remote.Store, clk clock.Clock, policy schedule.Policy, log *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if policy.Attempts <= 0 || policy.Interval <= 0 {
		policy = schedule.DefaultPolicy()
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{store: store, clk: clk, policy: policy, log: log}
	if h, ok := store.(remote.History); ok {
		m.history = h
	}
	return m
}

// ValidateName rejects names git would refuse or that are awkward in URLs.
func ValidateName(name string) error {
	if !validName.MatchString(name) || len(name) > 200 {
		return fmt.Errorf("%w: branch name %q", apperr.ErrInvalidName, name)
	}
	for _, bad := range []string{"..", "//", "@{"} {
		if strings.Contains(name, bad) {
			return fmt.Errorf("%w: branch name %q", apperr.ErrInvalidName, name)
		}
	}
	return nil
}

// List returns the branch names, sorted and de-duplicated.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	names, err := m.store.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("branches: list: %w", err)
	}
	return remote.SortBranches(names), nil
}

// Create branches name off the head of from and waits until the branch is
// listed. A wrapped apperr.ErrEventualConsistencyTimeout means the branch
// was requested but not yet observed.
func (m *Manager) Create(ctx context.Context, name, from string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := m.store.CreateBranch(ctx, name, from); err != nil {
		return fmt.Errorf("branches: create %s: %w", name, err)
	}
	m.log.Info("branches: created, awaiting confirmation",
		slog.String("branch", name),
		slog.String("from", from))
	return m.await(ctx, "create", name, true)
}

// Duplicate is Create with an explicit source branch.
func (m *Manager) Duplicate(ctx context.Context, src, dst string) error {
	if src == dst {
		return fmt.Errorf("%w: cannot duplicate %s onto itself", apperr.ErrInvalidName, src)
	}
	return m.Create(ctx, dst, src)
}

// Delete removes name and waits until it is no longer listed.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.store.DeleteBranch(ctx, name); err != nil {
		return fmt.Errorf("branches: delete %s: %w", name, err)
	}
	m.log.Info("branches: deleted, awaiting confirmation", slog.String("branch", name))
	return m.await(ctx, "delete", name, false)
}

func (m *Manager) await(ctx context.Context, op, name string, present bool) error {
	n, err := schedule.Confirm(ctx, m.clk, m.policy, func(ctx context.Context) (bool, error) {
		names, err := m.store.ListBranches(ctx)
		if err != nil {
			return false, err
		}
		return slices.Contains(names, name) == present, nil
	})
	metrics.RecordBranchConfirm(op, n, err)
	if errors.Is(err, apperr.ErrEventualConsistencyTimeout) {
		m.log.Warn("branches: change not visible yet, it may still be processing",
			slog.String("op", op),
			slog.String("branch", name),
			slog.Int("checks", n))
		return fmt.Errorf("branches: %s %s: %w", op, name, err)
	}
	if err != nil {
		return fmt.Errorf("branches: %s %s: %w", op, name, err)
	}
	m.log.Info("branches: change confirmed",
		slog.String("op", op),
		slog.String("branch", name),
		slog.Int("checks", n))
	return nil
}
