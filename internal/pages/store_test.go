package pages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/testutil"
)

// fakeClock hands out a fixed time that tests advance explicitly.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testStore(t *testing.T, opts ...Option) (*Store, string, *fakeClock) {
	t.Helper()
	root, fs := testutil.TestStorage(t)
	clock := &fakeClock{t: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewStore(fs, testutil.Logger(), opts...), root, clock
}

func stamp(t *testing.T, md *frontmatter.Metadata, key string) string {
	t.Helper()
	v, ok := md.Get(key)
	if !ok {
		t.Fatalf("metadata missing %q", key)
	}
	s, _ := v.AsString()
	return s
}

func TestWrite_NewPageSetsCreatedAndUpdated(t *testing.T) {
	s, root, _ := testStore(t)
	ctx := context.Background()

	md := frontmatter.New()
	md.Set(frontmatter.KeyTitle, frontmatter.String("Guide"))
	if _, err := s.Write(ctx, "docs/guide", "# Guide\n", md); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if md.Len() != 1 {
		t.Errorf("caller metadata was modified: %v", md.Keys())
	}
	if _, err := os.Stat(filepath.Join(root, "docs", "guide.md")); err != nil {
		t.Fatalf("page not on disk: %v", err)
	}

	doc, err := s.Read(ctx, "docs/guide")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Body != "# Guide\n" || doc.Metadata.Title() != "Guide" {
		t.Errorf("doc = %q / %q", doc.Body, doc.Metadata.Title())
	}
	created, updated := stamp(t, doc.Metadata, frontmatter.KeyCreated), stamp(t, doc.Metadata, frontmatter.KeyUpdated)
	if created != "2025-01-02T03:04:05.000Z" || created != updated {
		t.Errorf("created = %q, updated = %q", created, updated)
	}
	if doc.Checksum == "" || doc.LastModified.IsZero() {
		t.Errorf("missing checksum or mtime: %+v", doc)
	}
}

func TestWrite_SecondWriteKeepsCreated(t *testing.T) {
	s, _, clock := testStore(t)
	ctx := context.Background()

	if _, err := s.Write(ctx, "x", "v1", nil); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if _, err := s.Write(ctx, "x", "v2", frontmatter.New()); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Read(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Body != "v2" {
		t.Errorf("body = %q", doc.Body)
	}
	if got := stamp(t, doc.Metadata, frontmatter.KeyCreated); got != "2025-01-02T03:04:05.000Z" {
		t.Errorf("created = %q", got)
	}
	if got := stamp(t, doc.Metadata, frontmatter.KeyUpdated); got != "2025-01-02T04:04:05.000Z" {
		t.Errorf("updated = %q", got)
	}
}

func TestWrite_ExplicitCreatedWins(t *testing.T) {
	s, _, _ := testStore(t)
	ctx := context.Background()

	md := frontmatter.New()
	md.Set(frontmatter.KeyCreated, frontmatter.String("2020-05-05T00:00:00.000Z"))
	md.Set(frontmatter.KeyUpdated, frontmatter.String("stale"))
	md.Set("custom", frontmatter.List("a", "b"))
	if _, err := s.Write(ctx, "explicit", "body", md); err != nil {
		t.Fatal(err)
	}
	doc, _ := s.Read(ctx, "explicit")
	if got := stamp(t, doc.Metadata, frontmatter.KeyCreated); got != "2020-05-05T00:00:00.000Z" {
		t.Errorf("created = %q", got)
	}
	if got := stamp(t, doc.Metadata, frontmatter.KeyUpdated); got != "2025-01-02T03:04:05.000Z" {
		t.Errorf("updated = %q", got)
	}
	if got := strings.Join(doc.Metadata.Keys(), ","); got != "created,updated,custom" {
		t.Errorf("keys = %s", got)
	}
}

func TestWrite_HandWrittenPageUsesModTime(t *testing.T) {
	s, root, _ := testStore(t)
	abs := testutil.WriteFile(t, root, "legacy.md", "no header")
	mtime := time.Date(2019, 9, 9, 9, 9, 9, 0, time.UTC)
	if err := os.Chtimes(abs, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Write(context.Background(), "legacy", "now with header", nil); err != nil {
		t.Fatal(err)
	}
	doc, _ := s.Read(context.Background(), "legacy")
	if got := stamp(t, doc.Metadata, frontmatter.KeyCreated); got != "2019-09-09T09:09:09.000Z" {
		t.Errorf("created = %q", got)
	}
}

func TestRead_NotFound(t *testing.T) {
	s, _, _ := testStore(t)
	if _, err := s.Read(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteThenRead(t *testing.T) {
	s, _, _ := testStore(t)
	ctx := context.Background()
	if _, err := s.Write(ctx, "x", "body", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(ctx, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("read after delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestOperationsRejectInvalidPaths(t *testing.T) {
	s, root, _ := testStore(t)
	ctx := context.Background()
	for _, p := range []string{"../../etc/passwd", "a/../../b", "ok/../x"} {
		if _, err := s.Read(ctx, p); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("Read(%q) err = %v", p, err)
		}
		if _, err := s.Write(ctx, p, "x", nil); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("Write(%q) err = %v", p, err)
		}
		if err := s.Delete(ctx, p); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("Delete(%q) err = %v", p, err)
		}
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("invalid writes left files behind: %v", entries)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s, _, _ := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Write(ctx, "x", "y", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWrite_ConcurrentSamePath(t *testing.T) {
	s, _, _ := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Write(ctx, "shared", fmt.Sprintf("version %d", i), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	doc, err := s.Read(ctx, "shared")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(doc.Body, "version ") {
		t.Errorf("body = %q", doc.Body)
	}
	if n := s.locks.len(); n != 0 {
		t.Errorf("lock table not drained: %d entries", n)
	}
}

func TestStore_TreeAndSearchUseIgnorePatterns(t *testing.T) {
	s, root, _ := testStore(t, WithIgnorePatterns("private/**", "private"))
	testutil.WriteFile(t, root, "private/diary.md", "secret words")
	testutil.WriteFile(t, root, "public.md", "public words")

	tree := s.Tree(context.Background())
	if len(tree) != 1 || tree[0].Path != "public" {
		t.Errorf("tree = %v", shape(tree))
	}
	results := s.Search(context.Background(), "words", 0)
	if len(results) != 1 || results[0].Path != "public" {
		t.Errorf("search = %v", paths(results))
	}
}

func TestStore_SymlinkOutsideRootHidden(t *testing.T) {
	s, root, _ := testStore(t)
	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("TOP SECRET outside root\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "leak.md")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	testutil.WriteFile(t, root, "notes.md", "a secret kept inside")

	if _, err := s.Read(context.Background(), "leak"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("Read err = %v, want ErrInvalidPath", err)
	}
	results := s.Search(context.Background(), "secret", 0)
	if len(results) != 1 || results[0].Path != "notes" {
		t.Errorf("search = %v", paths(results))
	}
	tree := s.Tree(context.Background())
	if len(tree) != 1 || tree[0].Path != "notes" {
		t.Errorf("tree = %v", shape(tree))
	}
}

func TestWrite_InvalidUTF8MetadataRejected(t *testing.T) {
	s, root, _ := testStore(t)
	md := frontmatter.New()
	md.Set("title", frontmatter.String("bad \xff title"))

	_, err := s.Write(context.Background(), "page", "body", md)
	if !errors.Is(err, apperr.ErrInvalidMetadata) {
		t.Fatalf("err = %v, want ErrInvalidMetadata", err)
	}
	if errors.Is(err, apperr.ErrStorage) {
		t.Error("input error classified as storage failure")
	}
	if _, statErr := os.Stat(filepath.Join(root, "page.md")); !os.IsNotExist(statErr) {
		t.Errorf("page written despite bad metadata: %v", statErr)
	}

	md = frontmatter.New()
	md.Set("tags", frontmatter.List("ok", "\xfe"))
	if _, err := s.Write(context.Background(), "page", "body", md); !errors.Is(err, apperr.ErrInvalidMetadata) {
		t.Errorf("list err = %v, want ErrInvalidMetadata", err)
	}
}

func TestEnsureWelcome(t *testing.T) {
	s, root, _ := testStore(t)
	ctx := context.Background()

	created, err := s.EnsureWelcome(ctx)
	if err != nil || !created {
		t.Fatalf("EnsureWelcome = %v, %v", created, err)
	}
	doc, err := s.Read(ctx, "welcome")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Title() != "Welcome" {
		t.Errorf("title = %q", doc.Metadata.Title())
	}

	created, err = s.EnsureWelcome(ctx)
	if err != nil || created {
		t.Errorf("second EnsureWelcome = %v, %v", created, err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 {
		t.Errorf("entries = %v", entries)
	}
}
