// Package sha256 computes and checks artifact digests.
package sha256

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrDigestMismatch is returned by Verify when content changed.
var ErrDigestMismatch = errors.New("digest mismatch")

// Hasher implements reddit.Hasher using SHA-256.
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

// Verify checks data against a hex digest previously returned by Hash.
func (h *Hasher) Verify(data []byte, want string) error {
	got, _ := h.Hash(data)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("%w: want %s, got %s", ErrDigestMismatch, want, got)
	}
	return nil
}
