// Package pages implements the page tree, the linear search engine and the
// document store on top of a storage root.
package pages

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/quire/internal/storage"
)

// Diagnostic records an error swallowed while walking the storage tree.
type Diagnostic struct {
	Path string // slash path relative to the root, "" for the root itself
	Err  error
}

// WalkOption configures tree listing and search.
type WalkOption func(*walker)

// WithIgnore excludes entries whose slash path relative to the root (files
// including their ".md" extension) matches any of the doublestar patterns.
func WithIgnore(patterns ...string) WalkOption {
	return func(w *walker) {
		w.ignore = append(w.ignore, patterns...)
	}
}

// walker enumerates the storage tree. It is single use: the collator keeps
// internal buffers and must not be shared between goroutines.
type walker struct {
	ctx      context.Context
	root     string
	realRoot string
	ignore []string
	coll   *collate.Collator
}

type dirEntry struct {
	name string // display name: folder name, or file name without extension
	file string // name on disk
	rel  string // slash path relative to the root
	dir  bool
}

func newWalker(ctx context.Context, root string, opts []WalkOption) *walker {
	w := &walker{
		ctx:      ctx,
		root:     root,
		realRoot: root,
		coll:     collate.New(language.Und, collate.IgnoreCase),
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		w.realRoot = resolved
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *walker) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// entries lists the visible folders and pages of the directory at rel,
// folders first, each group in collated name order.
func (w *walker) entries(rel string) ([]dirEntry, error) {
	des, err := os.ReadDir(w.abs(rel))
	if err != nil {
		return nil, err
	}
	out := make([]dirEntry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, storage.HiddenPrefix) {
			continue
		}
		childRel := path.Join(rel, name)
		if w.ignored(childRel) {
			continue
		}
		if de.Type()&fs.ModeSymlink != 0 && w.linkEscapes(childRel) {
			continue
		}
		switch {
		case de.IsDir():
			out = append(out, dirEntry{name: name, file: name, rel: childRel, dir: true})
		case strings.HasSuffix(name, storage.Ext):
			out = append(out, dirEntry{name: strings.TrimSuffix(name, storage.Ext), file: name, rel: childRel})
		}
	}
	slices.SortStableFunc(out, w.compare)
	return out, nil
}

// linkEscapes reports whether the symlink at rel points outside the root.
func (w *walker) linkEscapes(rel string) bool {
	resolved, err := filepath.EvalSymlinks(w.abs(rel))
	if err != nil {
		return true
	}
	return !storage.Within(w.realRoot, resolved)
}

func (w *walker) compare(a, b dirEntry) int {
	if a.dir != b.dir {
		if a.dir {
			return -1
		}
		return 1
	}
	if c := w.coll.CompareString(a.name, b.name); c != 0 {
		return c
	}
	return strings.Compare(a.name, b.name)
}

func (w *walker) ignored(rel string) bool {
	for _, pattern := range w.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
