package storage

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/quire/internal/apperr"
)

const (
	// Ext is the file extension of stored pages.
	Ext = ".md"
	// HiddenPrefix marks directory entries excluded from listing and search.
	HiddenPrefix = "."
	// DefaultPage is the logical path used when none is given.
	DefaultPage = "index"
)

// CleanPath validates a user supplied logical path and returns its canonical
// form: no surrounding slashes, no ".md" suffix, no "." or empty segments.
// It fails with apperr.ErrInvalidPath on any ".." segment, including its
// percent-encoded forms, and on NUL bytes, backslashes or volume names.
func CleanPath(logical string) (string, error) {
	p := strings.TrimSpace(logical)
	switch {
	case strings.ContainsRune(p, 0):
		return "", apperr.InvalidPath(logical, "contains NUL byte")
	case strings.Contains(p, `\`):
		return "", apperr.InvalidPath(logical, "contains backslash")
	case filepath.VolumeName(p) != "":
		return "", apperr.InvalidPath(logical, "contains volume name")
	}
	p = strings.Trim(p, "/")
	p = strings.TrimSuffix(p, Ext)
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", apperr.InvalidPath(logical, "directory traversal")
		}
		if !strings.Contains(seg, "%") {
			continue
		}
		if dec, err := url.PathUnescape(seg); err == nil && (dec == ".." || strings.ContainsAny(dec, "/\\\x00")) {
			return "", apperr.InvalidPath(logical, "encoded traversal")
		}
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return DefaultPage, nil
	}
	return p, nil
}

// LogicalPath converts a path relative to the storage root, in OS or slash
// form, into the logical form used in responses.
func LogicalPath(rel string) string {
	return strings.TrimSuffix(filepath.ToSlash(rel), Ext)
}

// Within reports whether target is root or lies beneath it.
func Within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
