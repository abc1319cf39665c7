// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package watch reports changes to a set of mapper files.
//
// The directories holding the files are watched rather than the files
// themselves, so that editors replacing a file by renaming over it are seen.
// Bursts of events are coalesced: the callback runs once the files have been
// quiet for the debounce interval.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches mapper files for changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	// files holds the absolute path of every watched file.
	files map[string]bool
}

// New starts watching paths. A debounce of zero selects DefaultDebounce and
// a nil logger selects slog.Default().
func New(paths []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("cannot watch mappers: no files given")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create file watcher")
	}
	w := &Watcher{
		watcher:  fw,
		logger:   logger,
		debounce: debounce,
		files:    make(map[string]bool),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, errors.Wrapf(err, "cannot watch %s", p)
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, errors.Wrapf(err, "cannot watch directory %s", dir)
		}
		dirs[dir] = true
	}
	return w, nil
}

// Run calls onChange with the sorted paths of the files changed since the
// previous call. It blocks until ctx is done or the watcher fails, and
// releases the watcher before returning.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	defer w.watcher.Close()

	w.logger.Info("watching mapper files",
		"files", len(w.files),
		"debounce", w.debounce,
	)

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopped watching mapper files")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("file watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("mapper file event", "path", event.Name, "op", event.Op.String())
			pending[filepath.Clean(event.Name)] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			onChange(paths)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("file watcher errors channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return w.files[filepath.Clean(event.Name)]
}
