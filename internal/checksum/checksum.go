// Package checksum fingerprints raw page files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag formats a digest returned by Sum as a strong HTTP entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}
