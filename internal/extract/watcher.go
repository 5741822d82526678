package extract

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the tables file into e whenever it changes, until ctx is done.
// The parent directory is watched so editor rename-and-replace saves are seen.
// A file that fails to parse is logged and the previous tables stay in use.
func Watch(ctx context.Context, e *Extractor, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("tables watcher error", "error", err)
		case <-debounce:
			debounce = nil
			t, err := LoadTables(abs)
			if err != nil {
				slog.Warn("tables reload failed, keeping previous", "path", abs, "error", err)
				continue
			}
			e.SetTables(t)
			slog.Info("extraction tables reloaded", "path", abs,
				"products", len(t.Products), "local_areas", len(t.LocalAreas))
		}
	}
}
