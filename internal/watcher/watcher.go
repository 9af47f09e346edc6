// Package watcher reports page changes made under the storage root, whether
// by the API or by editing files directly.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/starford/quire/internal/storage"
)

// Kind is the type of a page change.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// Callback receives a change to the page at a logical path.
type Callback func(kind Kind, path string)

// DefaultDebounce is how long events for one path are coalesced.
const DefaultDebounce = 100 * time.Millisecond

type config struct {
	ignore   []string
	debounce time.Duration
}

// Option configures Watch.
type Option func(*config)

// WithIgnore drops changes whose slash path relative to the root matches a
// doublestar pattern.
func WithIgnore(patterns ...string) Option {
	return func(c *config) { c.ignore = append(c.ignore, patterns...) }
}

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(c *config) { c.debounce = d }
}

type watcher struct {
	fsw    *fsnotify.Watcher
	root   string
	cfg    config
	logger *slog.Logger
	cb     Callback

	known   map[string]struct{}
	pending map[string]Kind
	timer   *time.Timer
}

// Watch watches root recursively until ctx is cancelled, calling cb for every
// page created, updated or deleted. Directories created at runtime are added
// to the watch list and the pages already inside them reported as created.
// Hidden entries are skipped.
func Watch(ctx context.Context, root string, logger *slog.Logger, cb Callback, opts ...Option) error {
	cfg := config{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&cfg)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w := &watcher{
		fsw:     fsw,
		root:    root,
		cfg:     cfg,
		logger:  logger,
		cb:      cb,
		known:   make(map[string]struct{}),
		pending: make(map[string]Kind),
	}
	if err := w.addDir(root, false); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root), slog.Int("pages", len(w.known)))

	for {
		var flush <-chan time.Time
		if w.timer != nil {
			flush = w.timer.C
		}
		select {
		case <-ctx.Done():
			if w.timer != nil {
				w.timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flush:
			w.timer = nil
			w.flush()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || w.skip(rel) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if addErr := w.addDir(ev.Name, true); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", addErr.Error()))
			}
			return
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.dropDir(ev.Name, filepath.ToSlash(rel))
	}

	if !strings.HasSuffix(ev.Name, storage.Ext) {
		return
	}
	logical := storage.LogicalPath(rel)

	switch {
	case ev.Op&fsnotify.Create != 0:
		// Atomic saves rename over the old file, which arrives as Create.
		if _, ok := w.known[logical]; ok {
			w.queue(logical, Updated)
		} else {
			w.known[logical] = struct{}{}
			w.queue(logical, Created)
		}
	case ev.Op&fsnotify.Write != 0:
		w.known[logical] = struct{}{}
		w.queue(logical, Updated)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Rename fires on the old name only; the new name arrives as Create.
		if _, ok := w.known[logical]; ok {
			delete(w.known, logical)
			w.queue(logical, Deleted)
		}
	}
}

// dropDir handles a directory removed or moved away. Only the directory's own
// event may arrive, so every known page beneath it is reported deleted and
// the watches under it are released.
func (w *watcher) dropDir(name, rel string) {
	prefix := rel + "/"
	for logical := range w.known {
		if strings.HasPrefix(logical, prefix) {
			delete(w.known, logical)
			w.queue(logical, Deleted)
		}
	}
	dirPrefix := name + string(filepath.Separator)
	for _, watched := range w.fsw.WatchList() {
		if watched == name || strings.HasPrefix(watched, dirPrefix) {
			_ = w.fsw.Remove(watched)
		}
	}
}

// skip reports whether rel is hidden or ignored.
func (w *watcher) skip(rel string) bool {
	if rel == "." {
		return false
	}
	slash := filepath.ToSlash(rel)
	for _, seg := range strings.Split(slash, "/") {
		if strings.HasPrefix(seg, storage.HiddenPrefix) {
			return true
		}
	}
	for _, p := range w.cfg.ignore {
		if ok, _ := doublestar.Match(p, slash); ok {
			return true
		}
	}
	return false
}

// addDir watches dir and its visible subdirectories and records the pages
// found. With report set, those pages are queued as created.
func (w *watcher) addDir(dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		if w.skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if !strings.HasSuffix(path, storage.Ext) {
			return nil
		}
		logical := storage.LogicalPath(rel)
		if _, ok := w.known[logical]; ok {
			return nil
		}
		w.known[logical] = struct{}{}
		if report {
			w.queue(logical, Created)
		}
		return nil
	})
}

// queue records a change and (re)arms the flush timer. A created page that
// is then updated stays created; one deleted and recreated is updated.
func (w *watcher) queue(path string, kind Kind) {
	prev, ok := w.pending[path]
	switch {
	case !ok:
		w.pending[path] = kind
	case prev == Created && kind == Updated:
	case prev == Created && kind == Deleted:
		delete(w.pending, path)
	case prev == Deleted && kind == Created:
		w.pending[path] = Updated
	default:
		w.pending[path] = kind
	}
	if w.timer == nil {
		w.timer = time.NewTimer(w.cfg.debounce)
	} else {
		w.timer.Reset(w.cfg.debounce)
	}
}

func (w *watcher) flush() {
	for path, kind := range w.pending {
		w.logger.Debug("watcher: page changed", slog.String("path", path), slog.String("kind", string(kind)))
		if w.cb != nil {
			w.cb(kind, path)
		}
	}
	clear(w.pending)
}
