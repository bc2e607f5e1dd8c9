package branches

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/schedule"
	"github.com/starford/folio/internal/testutil"
)

// run advances the mock clock until fn returns.
func run(t *testing.T, mock *clock.Mock, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("operation did not return")
		default:
			mock.Add(30 * time.Second)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestCreate_ConfirmedAfterLag(t *testing.T) {
	store := testutil.NewFakeStore("main")
	store.HideBranchFor("feature", 2)
	mock := clock.NewMock()
	m := New(store, mock, schedule.DefaultPolicy(), nil)

	err := run(t, mock, func() error { return m.Create(context.Background(), "feature", "main") })
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	names, _ := m.List(context.Background())
	if !reflect.DeepEqual(names, []string{"feature", "main"}) {
		t.Errorf("branches = %v", names)
	}
}

func TestCreate_TimeoutIsWarning(t *testing.T) {
	store := testutil.NewFakeStore("main")
	store.HideBranchFor("slow", 100)
	mock := clock.NewMock()
	m := New(store, mock, schedule.Policy{Attempts: 6, Interval: 30 * time.Second}, nil)

	err := run(t, mock, func() error { return m.Create(context.Background(), "slow", "main") })
	if !errors.Is(err, apperr.ErrEventualConsistencyTimeout) {
		t.Fatalf("err = %v, want ErrEventualConsistencyTimeout", err)
	}
}

func TestCreate_Errors(t *testing.T) {
	store := testutil.NewFakeStore("main")
	m := New(store, clock.NewMock(), schedule.Policy{}, nil)
	ctx := context.Background()

	if err := m.Create(ctx, "bad name", "main"); !errors.Is(err, apperr.ErrInvalidName) {
		t.Errorf("invalid name err = %v", err)
	}
	if err := m.Create(ctx, "x", "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing source err = %v", err)
	}
	if err := m.Create(ctx, "main", "main"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("existing branch err = %v", err)
	}
	if err := m.Duplicate(ctx, "main", "main"); !errors.Is(err, apperr.ErrInvalidName) {
		t.Errorf("self duplicate err = %v", err)
	}
}

func TestDuplicate_CopiesContent(t *testing.T) {
	store := testutil.NewFakeStore("main")
	store.Seed("main", "content/a.md", []byte("a"))
	m := New(store, clock.NewMock(), schedule.Policy{}, nil)

	if err := m.Duplicate(context.Background(), "main", "copy"); err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if data, ok := store.Content("copy", "content/a.md"); !ok || string(data) != "a" {
		t.Errorf("copied content = %q %v", data, ok)
	}
}

func TestDelete_WaitsUntilGone(t *testing.T) {
	store := testutil.NewFakeStore("main", "old")
	store.KeepDeletedFor("old", 3)
	mock := clock.NewMock()
	m := New(store, mock, schedule.DefaultPolicy(), nil)

	if err := run(t, mock, func() error { return m.Delete(context.Background(), "old") }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(context.Background(), "old"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"main", "feature/login", "release-1.2", "v2_docs"} {
		if err := ValidateName(ok); err != nil {
			t.Errorf("ValidateName(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "-x", "a..b", "a//b", "has space", "x@{y"} {
		if err := ValidateName(bad); err == nil {
			t.Errorf("ValidateName(%q) accepted", bad)
		}
	}
}
