package remote

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_ReportsExternalEdits(t *testing.T) {
	s := tempStore(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var changes []Change
	go s.Watch(ctx, logger, func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	dir := filepath.Join(s.Root(), "main", "content")
	_ = os.MkdirAll(dir, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(dir, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range changes {
			if c.Branch == "main" && c.Path == "content/new.md" {
				return true
			}
		}
		return false
	}, "change to content/new.md not reported")
}

func TestFS_Split(t *testing.T) {
	s := tempStore(t)
	branch, rel, ok := s.split(filepath.Join(s.Root(), "feature%2Fx", "content", "a.md"))
	if !ok || branch != "feature/x" || rel != "content/a.md" {
		t.Errorf("split = %q %q %v", branch, rel, ok)
	}
	if _, _, ok := s.split(filepath.Join(s.Root(), "main")); ok {
		t.Error("branch directory itself is not a file change")
	}
}
