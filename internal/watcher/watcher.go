// Package watcher re-indexes a corpus incrementally when files below its
// root change on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dshills/coderag/internal/reader"
	"github.com/dshills/coderag/internal/service"
)

// DefaultDebounce is used when no positive debounce is configured
const DefaultDebounce = 2 * time.Second

// Indexer runs incremental builds and names the directories below a root
// it never ingests
type Indexer interface {
	Incremental(ctx context.Context, req service.BuildRequest) (*service.BuildResult, error)
	ReservedExcludes(root string) []string
}

// Watcher collapses bursts of file events under a root into single
// incremental builds
type Watcher struct {
	indexer  Indexer
	reader   *reader.Reader
	req      service.BuildRequest
	exclude  []string // req.Exclude plus the indexer's reserved dirs
	debounce time.Duration
	logger   zerolog.Logger
}

// New creates a watcher for req.Root. The reader decides which paths are
// excluded and which extensions count as corpus files.
func New(indexer Indexer, r *reader.Reader, req service.BuildRequest, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(req.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", service.ErrRootNotFound, req.Root)
	}
	req.Root = root

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		indexer:  indexer,
		reader:   r,
		req:      req,
		exclude:  append(append([]string(nil), req.Exclude...), indexer.ReservedExcludes(root)...),
		debounce: debounce,
		logger:   logger.With().Str("component", "watcher").Logger(),
	}, nil
}

// Run watches until ctx is cancelled. Each quiet period of debounce after a
// relevant event triggers one incremental build; a build that finds another
// one running is retried after the next quiet period.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addTree(fsw, w.req.Root); err != nil {
		return err
	}
	w.logger.Info().Str("root", w.req.Root).Dur("debounce", w.debounce).Msg("watching for changes")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watcher stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(fsw, ev) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			if w.rebuild(ctx) {
				timer.Reset(w.debounce)
			}
		}
	}
}

// handle reports whether ev should schedule a build, and starts watching
// newly created directories
func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}

	rel, err := filepath.Rel(w.req.Root, ev.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if w.reader.Excluded(rel, w.exclude) {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, ev.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", rel).Msg("cannot watch new directory")
			}
			return true
		}
	}

	// Removed directories have no extension but may have held corpus files.
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return true
	}
	return w.reader.Allowed(rel)
}

// rebuild runs one incremental build and reports whether it should be retried
func (w *Watcher) rebuild(ctx context.Context) bool {
	result, err := w.indexer.Incremental(ctx, w.req)
	switch {
	case errors.Is(err, service.ErrBuildInProgress):
		w.logger.Debug().Msg("build already running; retrying after next quiet period")
		return true
	case errors.Is(err, service.ErrNoFilesIndexed):
		w.logger.Warn().Msg("no indexable files under root")
	case err != nil:
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("incremental build failed")
		}
	case result.UpToDate:
		w.logger.Debug().Msg("index already up to date")
	default:
		w.logger.Info().
			Int("files_indexed", result.Stats.FilesIndexed).
			Int("files_skipped", result.FilesSkipped).
			Int("documents", result.Documents).
			Msg("index refreshed")
	}
	return false
}

// addTree watches dir and every non-excluded directory below it
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.req.Root {
			rel, err := filepath.Rel(w.req.Root, path)
			if err == nil && w.reader.Excluded(filepath.ToSlash(rel), w.exclude) {
				return filepath.SkipDir
			}
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
