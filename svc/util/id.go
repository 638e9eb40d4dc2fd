package util

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 8
)

// NewID returns an 8-character identifier drawn uniformly from the
// 62-symbol alphabet. Stateless; uniqueness is the caller's problem
// (atomic insert-if-absent with retry on collision).
func NewID() (string, error) {
	buf := make([]byte, idLength)
	id := make([]byte, idLength)
	// Rejection sampling keeps the distribution uniform: 62*4 = 248 is
	// the largest multiple of 62 that fits in a byte.
	const limit = 248
	for i := 0; i < idLength; {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "rand fail")
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			id[i] = idAlphabet[int(b)%len(idAlphabet)]
			i++
			if i == idLength {
				break
			}
		}
	}
	return string(id), nil
}

// ValidID reports whether s has the shape of an allocator-issued id.
func ValidID(s string) bool {
	if len(s) != idLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
