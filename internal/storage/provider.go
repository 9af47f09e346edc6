// Package storage maps logical page paths onto Markdown files under a
// storage root and guards every access against escaping that root.
package storage

import "io/fs"

// Provider is the interface for page file operations. Every method takes a
// logical path (slash separated, no ".md" suffix) and resolves it through the
// path sanitizer before touching the filesystem.
type Provider interface {
	// Root returns the absolute storage root.
	Root() string
	// Resolve validates path and returns the physical file path.
	Resolve(path string) (string, error)
	// Read returns the raw bytes and file info of the page at path.
	Read(path string) ([]byte, fs.FileInfo, error)
	// Stat returns the file info of the page at path.
	Stat(path string) (fs.FileInfo, error)
	// Write atomically replaces the page at path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the page at path.
	Delete(path string) error
}
