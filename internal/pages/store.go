package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// Store reads, writes and deletes pages by logical path and exposes the tree
// listing and search over the same storage root.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger
	locks  *pathLocks
	ignore []string
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIgnorePatterns hides matching entries from Tree and Search.
func WithIgnorePatterns(patterns ...string) Option {
	return func(s *Store) {
		s.ignore = append(s.ignore, patterns...)
	}
}

// WithClock replaces the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store over the given storage provider.
func NewStore(fs storage.Provider, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		fs:     fs,
		logger: logger,
		locks:  newPathLocks(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.fs.Root() }

// Read returns the page at path. It fails with apperr.ErrNotFound when the
// page does not exist and apperr.ErrInvalidPath when path is rejected.
func (s *Store) Read(ctx context.Context, path string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := storage.CleanPath(path)
	if err != nil {
		return nil, err
	}
	data, info, err := s.fs.Read(clean)
	if err != nil {
		return nil, err
	}
	md, body := frontmatter.Decode(data)
	return &models.Document{
		Path:         clean,
		Body:         body,
		Metadata:     md,
		LastModified: info.ModTime(),
		Checksum:     checksum.Sum(data),
	}, nil
}

// Write stores body and md at path, replacing any existing page, and returns
// the new modification time. md is not modified. The created stamp is kept
// from md, else from the existing page, else set to now; updated is always
// set to now.
func (s *Store) Write(ctx context.Context, path, body string, md *frontmatter.Metadata) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	clean, err := storage.CleanPath(path)
	if err != nil {
		return time.Time{}, err
	}
	if _, err := s.fs.Resolve(clean); err != nil {
		return time.Time{}, err
	}

	unlock := s.locks.lock(clean)
	defer unlock()

	now := s.now()
	out := md.Clone()
	if v, ok := out.Get(frontmatter.KeyCreated); !ok || isBlank(v) {
		created, err := s.existingCreated(clean, now)
		if err != nil {
			return time.Time{}, err
		}
		out.Set(frontmatter.KeyCreated, created)
	}
	out.SetTime(frontmatter.KeyUpdated, now)
	if err := out.Validate(); err != nil {
		return time.Time{}, err
	}

	data, err := frontmatter.Encode(body, out)
	if err != nil {
		return time.Time{}, apperr.Storage("pages: encode "+clean, err)
	}
	if err := s.fs.Write(clean, data); err != nil {
		return time.Time{}, err
	}
	info, err := s.fs.Stat(clean)
	if err != nil {
		return time.Time{}, err
	}
	s.logger.Info("page saved", slog.String("path", clean), slog.Int("bytes", len(data)))
	return info.ModTime(), nil
}

// existingCreated returns the created stamp for a write that did not supply
// one: the stored page's own stamp, its modification time, or now for a new
// page.
func (s *Store) existingCreated(clean string, now time.Time) (frontmatter.Value, error) {
	data, info, err := s.fs.Read(clean)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return frontmatter.String(now.UTC().Format(frontmatter.TimeLayout)), nil
	case err != nil:
		return frontmatter.Value{}, err
	}
	prev, _ := frontmatter.Decode(data)
	if v, ok := prev.Get(frontmatter.KeyCreated); ok && !isBlank(v) {
		return v, nil
	}
	return frontmatter.String(info.ModTime().UTC().Format(frontmatter.TimeLayout)), nil
}

func isBlank(v frontmatter.Value) bool {
	s, ok := v.AsString()
	return ok && s == ""
}

// Delete removes the page at path. It fails with apperr.ErrNotFound when the
// page does not exist.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := storage.CleanPath(path)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(clean)
	defer unlock()

	if err := s.fs.Delete(clean); err != nil {
		return err
	}
	s.logger.Info("page deleted", slog.String("path", clean))
	return nil
}

// Tree lists the page tree. Swallowed errors are logged.
func (s *Store) Tree(ctx context.Context) []models.TreeNode {
	listing := ListTree(ctx, s.fs.Root(), WithIgnore(s.ignore...))
	s.logDiagnostics("tree", listing.Diagnostics)
	return listing.Nodes
}

// Search runs a linear search over all pages. Swallowed errors are logged.
func (s *Store) Search(ctx context.Context, query string, limit int) []models.SearchResult {
	outcome := Search(ctx, s.fs.Root(), query, limit, WithIgnore(s.ignore...))
	s.logDiagnostics("search", outcome.Diagnostics)
	return outcome.Results
}

func (s *Store) logDiagnostics(op string, diags []Diagnostic) {
	for _, d := range diags {
		s.logger.Warn(op+": skipped entry", slog.String("path", d.Path), slog.String("error", d.Err.Error()))
	}
}

const welcomeBody = `# Welcome to Quire

Your personal knowledge base is ready!

## Getting Started

- Edit this page to make it your own
- Create new pages; a path like ` + "`projects/ideas`" + ` creates folders as needed
- All content is saved as Markdown files with a YAML header

Enjoy your wiki!
`

// EnsureWelcome writes a welcome page when the storage root is empty. It
// reports whether a page was created.
func (s *Store) EnsureWelcome(ctx context.Context) (bool, error) {
	entries, err := os.ReadDir(s.fs.Root())
	if err != nil {
		return false, apperr.Storage("pages: read root", err)
	}
	if len(entries) > 0 {
		return false, nil
	}
	md := frontmatter.New()
	md.Set(frontmatter.KeyTitle, frontmatter.String("Welcome"))
	if _, err := s.Write(ctx, "welcome", welcomeBody, md); err != nil {
		return false, fmt.Errorf("pages: write welcome page: %w", err)
	}
	return true, nil
}
