package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch logs external edits to the given documents and reports edits
// that leave a document unparseable. The documents are meant to be
// hand-editable, so a bad save should be noticed before the next login
// fails. It blocks until the context is cancelled.
//
// Directories are watched rather than files because writers (including
// this package) replace documents by rename.
func Watch(ctx context.Context, logger *slog.Logger, paths ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}

		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if !watched[event.Name] {
				continue
			}

			handleDocumentEvent(logger, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}
			// Non-fatal: the documents are still reloaded on every operation.
			logger.Warn("document watcher error", slog.String("error", err.Error()))
		}
	}
}

func handleDocumentEvent(logger *slog.Logger, event fsnotify.Event) {
	if event.Has(fsnotify.Remove) {
		logger.Warn("document removed", slog.String("path", event.Name))
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	if err := CheckDocument(event.Name); err != nil {
		logger.Error("document is no longer readable",
			slog.String("path", event.Name),
			slog.String("error", err.Error()),
		)

		return
	}

	logger.Debug("document changed", slog.String("path", event.Name))
}

// CheckDocument reports whether the file at path holds valid JSON,
// returning the same sentinel errors as a regular load.
func CheckDocument(path string) error {
	var v json.RawMessage
	return readDocument(path, &v)
}
