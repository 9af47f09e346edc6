package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/natefinch/atomic"

	"github.com/starford/quire/internal/apperr"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root     string // absolute path to the storage directory
	realRoot string // root with symlinks evaluated
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: eval root: %w", err)
	}
	return &FS{root: abs, realRoot: resolved}, nil
}

// Root returns the absolute storage root.
func (f *FS) Root() string { return f.root }

// Resolve maps a logical path to root/<path>.md and rejects any result that
// escapes the root, lexically, through a symlinked directory or through a
// symlinked page file.
func (f *FS) Resolve(logical string) (string, error) {
	clean, err := CleanPath(logical)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(f.root, filepath.FromSlash(clean)+Ext)
	if abs == f.root || !Within(f.root, abs) {
		return "", apperr.InvalidPath(logical, "escapes storage root")
	}
	if f.escapesViaSymlink(abs) || f.linkEscapes(abs) {
		return "", apperr.InvalidPath(logical, "escapes storage root through symlink")
	}
	return abs, nil
}

// linkEscapes reports whether abs is a symlink whose target lies outside the
// real root. Dangling links count as escaping.
func (f *FS) linkEscapes(abs string) bool {
	info, err := os.Lstat(abs)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return false
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return true
	}
	return !Within(f.realRoot, resolved)
}

// escapesViaSymlink evaluates the nearest existing ancestor of abs and checks
// that it still lies under the real root.
func (f *FS) escapesViaSymlink(abs string) bool {
	dir := filepath.Dir(abs)
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return !Within(f.realRoot, resolved)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir || !Within(f.root, parent) {
			return false
		}
		dir = parent
	}
}

// Read returns the raw bytes of a page together with its file info.
func (f *FS) Read(logical string) ([]byte, fs.FileInfo, error) {
	abs, err := f.Resolve(logical)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, nil, classify("read", logical, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, nil, classify("stat", logical, err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("storage: read %s: %w", logical, apperr.ErrNotFound)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, classify("read", logical, err)
	}
	return data, info, nil
}

// Stat returns the file info of a page.
func (f *FS) Stat(logical string) (fs.FileInfo, error) {
	abs, err := f.Resolve(logical)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, classify("stat", logical, err)
	}
	return info, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(logical string, content []byte) error {
	abs, err := f.Resolve(logical)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return apperr.Storage("storage: mkdir", err)
	}
	_, statErr := os.Stat(abs)
	if err := atomic.WriteFile(abs, bytes.NewReader(content)); err != nil {
		return apperr.Storage("storage: write "+logical, err)
	}
	// New files come out of the temp file with 0600.
	if errors.Is(statErr, fs.ErrNotExist) {
		if err := os.Chmod(abs, 0o644); err != nil {
			return apperr.Storage("storage: chmod "+logical, err)
		}
	}
	return nil
}

// Delete removes a page file.
func (f *FS) Delete(logical string) error {
	abs, err := f.Resolve(logical)
	if err != nil {
		return err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return classify("delete", logical, err)
	}
	if info.IsDir() {
		return fmt.Errorf("storage: delete %s: %w", logical, apperr.ErrNotFound)
	}
	if err := os.Remove(abs); err != nil {
		return classify("delete", logical, err)
	}
	return nil
}

func classify(op, logical string, err error) error {
	// ENOTDIR: a path segment names a file, so the page cannot exist.
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("storage: %s %s: %w", op, logical, apperr.ErrNotFound)
	}
	return apperr.Storage("storage: "+op+" "+logical, err)
}

var _ Provider = (*FS)(nil)
