package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// WatchLocalChanges watches the database file for writes made by other
// processes (for example the CLI adding an entry while the daemon runs) and
// calls fn whenever the stored last-local-change timestamp moves forward.
// Writes that leave it unchanged, such as sync replacing entries, are ignored.
//
// It blocks until ctx is cancelled.
func WatchLocalChanges(ctx context.Context, db *DB, fn func(at int64)) error {
	if db.path == "" {
		return fmt.Errorf("database has no file path to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: SQLite writes journal/WAL files next to the database.
	dir := filepath.Dir(db.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	base := filepath.Base(db.path)

	seen, _, err := db.LastLocalChange(ctx)
	if err != nil {
		return err
	}

	logger.Debug("store: watching %s for local changes", db.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			at, ok, err := db.LastLocalChange(ctx)
			if err != nil {
				logger.Warn("store: failed to read last local change: %v", err)
				continue
			}
			if !ok || at <= seen {
				continue
			}
			seen = at
			logger.Debug("store: local change detected at %d", at)
			fn(at)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("store: watcher error: %v", err)
		}
	}
}
