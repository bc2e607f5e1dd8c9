package remote

import (
	"context"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Change is an out-of-band edit observed in the local store.
type Change struct {
	Branch string
	Path   string
	// Kind is one of "created", "updated", "deleted".
	Kind string
}

// Watch reports edits made to the store directory by other programs until
// ctx is cancelled. New directories are added to the watch list as they
// appear.
func (f *FS) Watch(ctx context.Context, logger *slog.Logger, cb func(Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, f.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", f.root))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(ev.Name), tmpPrefix) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			branch, rel, ok := f.split(ev.Name)
			if !ok {
				continue
			}
			var kind string
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = "created"
			case ev.Op&fsnotify.Write != 0:
				kind = "updated"
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = "deleted"
			default:
				continue
			}
			logger.Debug("watcher: change",
				slog.String("branch", branch),
				slog.String("path", rel),
				slog.String("op", kind))
			if cb != nil {
				cb(Change{Branch: branch, Path: rel, Kind: kind})
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// split maps an absolute file path to its branch and slash-separated path.
func (f *FS) split(abs string) (branch, rel string, ok bool) {
	r, err := filepath.Rel(f.root, abs)
	if err != nil || strings.HasPrefix(r, "..") {
		return "", "", false
	}
	parts := strings.SplitN(filepath.ToSlash(r), "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	branch, err = url.PathUnescape(parts[0])
	if err != nil {
		return "", "", false
	}
	return branch, parts[1], true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
