// Package hexutil provides the small set of byte utilities spec.md groups
// under "C2 — Hex + byte utils": hex<->bytes conversion with a fixed-length
// check, constant-time comparison, and secure random byte generation.
package hexutil

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidHex is returned when a string is not valid hex (either case
// is accepted), or does not decode to the expected length.
var ErrInvalidHex = errors.New("hexutil: invalid hex")

// Decode hex-decodes s and requires the result to be exactly n bytes when
// n > 0. Pass n == 0 to accept any length.
func Decode(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	if n > 0 && len(b) != n {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidHex, n, len(b))
	}
	return b, nil
}

// Encode lowercase-hex-encodes b, matching the wire format spec.md §6
// requires for every 32-/64-byte Event field.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// ConstantTimeEqual reports whether a and b are equal, taking time
// independent of where they first differ. Used for NIP-44 MAC comparison
// per §4.5 and §7 ("never branch on partial comparisons").
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("hexutil: random bytes: %w", err)
	}
	return b, nil
}
