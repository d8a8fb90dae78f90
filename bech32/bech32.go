// Package bech32 implements the NIP-19 bech32 codec used to encode Nostr
// keys and other byte strings as human-readable, checksummed strings
// (npub1..., nsec1...).
//
// The heavy lifting (5-bit/8-bit conversion, the polymod checksum) is
// delegated to github.com/btcsuite/btcd/btcutil/bech32, the same package
// the rest of this corpus reaches for (see 77elements-noorsigner/crypto.go).
// This package wraps it with the hrp-aware error taxonomy NIP-19 callers
// expect.
package bech32

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// ErrInvalidBech32 is returned for malformed input: a bad character, a
// payload shorter than the checksum, or a checksum that doesn't verify.
var ErrInvalidBech32 = errors.New("bech32: invalid encoding")

// UnknownPrefixError is returned by callers that expect a specific hrp
// (e.g. DecodeExpect("npub", s)) when the string carries a different one.
type UnknownPrefixError struct {
	Prefix string
}

func (e *UnknownPrefixError) Error() string {
	return fmt.Sprintf("bech32: unknown prefix %q", e.Prefix)
}

// Encode converts raw 8-bit data to 5-bit groups, appends it to hrp with a
// "1" separator, and appends the polymod checksum.
func Encode(hrp string, data []byte) (string, error) {
	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBech32, err)
	}
	encoded, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBech32, err)
	}
	return encoded, nil
}

// Decode locates the final "1" separator, verifies the checksum, and
// returns the hrp plus the payload converted back to 8-bit bytes.
func Decode(s string) (hrp string, data []byte, err error) {
	hrp, values, err := bech32.Decode(s)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidBech32, err)
	}
	if hrp == "" {
		return "", nil, ErrInvalidBech32
	}
	data, err = bech32.ConvertBits(values, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidBech32, err)
	}
	return hrp, data, nil
}

// DecodeExpect decodes s and verifies its hrp matches want (case-insensitive
// on the hrp portion, matching the bech32 spec's whole-string case rule).
func DecodeExpect(want, s string) ([]byte, error) {
	hrp, data, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hrp, want) {
		return nil, &UnknownPrefixError{Prefix: hrp}
	}
	return data, nil
}
