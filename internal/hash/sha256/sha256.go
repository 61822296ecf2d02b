// Package sha256 fingerprints rendered pages.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Short truncates a hex digest to n characters for use in object names.
func Short(digest string, n int) string {
	if n <= 0 || n >= len(digest) {
		return digest
	}
	return digest[:n]
}
