// Package apperr holds the error kinds shared across Quire packages.
//
// Callers classify failures with errors.Is; the concrete error returned by a
// component usually wraps one of these sentinels together with its cause.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath marks a logical path rejected by the sanitizer
	// (traversal, escape from the storage root, forbidden characters).
	ErrInvalidPath = errors.New("invalid path")
	// ErrNotFound marks a read or delete whose target does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks an unexpected filesystem or database failure.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidMetadata marks page metadata that cannot be stored, such as
	// text that is not valid UTF-8.
	ErrInvalidMetadata = errors.New("invalid metadata")
	// ErrInvalidCredentials is returned by login for a bad username/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// InvalidPath returns an ErrInvalidPath error describing the rejected input.
func InvalidPath(path, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalidPath, path, reason)
}

// Storage wraps cause as an ErrStorage failure of op.
func Storage(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, cause)
}
