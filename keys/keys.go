// Package keys implements spec.md's C3 — Nostr key material: a secp256k1
// keypair reduced to its BIP-340 x-only public key, with bech32 (NIP-19)
// nsec/npub encoding.
//
// Grounded on 77elements-noorsigner/crypto.go, which performs the same
// nsec<->npub<->btcec.PrivateKey conversions by hand against
// github.com/btcsuite/btcd/btcec/v2 and /schnorr; this package generalizes
// that into a reusable, zeroable KeyPair type.
package keys

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/girino/nostrkit/bech32"
	"github.com/girino/nostrkit/hexutil"
)

var (
	// ErrInvalidPrivateKey covers a scalar of the wrong length, zero, or
	// not reduced modulo the curve order.
	ErrInvalidPrivateKey = errors.New("keys: invalid private key")
	// ErrInvalidPublicKey covers an x-only public key that isn't a valid
	// curve point.
	ErrInvalidPublicKey = errors.New("keys: invalid public key")
)

// PublicKey is a 32-byte BIP-340 x-only secp256k1 public key.
type PublicKey [32]byte

// Hex returns the lowercase-hex encoding used on the wire (Event.pubkey).
func (p PublicKey) Hex() string { return hexutil.Encode(p[:]) }

// Npub bech32-encodes the public key with the "npub" hrp (NIP-19).
func (p PublicKey) Npub() (string, error) {
	return bech32.Encode("npub", p[:])
}

// ParsePublicKeyHex parses a 32-byte hex x-only public key.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	b, err := hexutil.Decode(s, 32)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	var pk PublicKey
	copy(pk[:], b)
	if _, err := schnorr.ParsePubKey(pk[:]); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pk, nil
}

// ParseNpub decodes a bech32 npub string into a PublicKey.
func ParseNpub(npub string) (PublicKey, error) {
	data, err := bech32.DecodeExpect("npub", npub)
	if err != nil {
		return PublicKey{}, err
	}
	if len(data) != 32 {
		return PublicKey{}, fmt.Errorf("%w: npub payload must be 32 bytes, got %d", ErrInvalidPublicKey, len(data))
	}
	var pk PublicKey
	copy(pk[:], data)
	if _, err := schnorr.ParsePubKey(pk[:]); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pk, nil
}

// KeyPair owns a 32-byte secp256k1 private scalar and its derived x-only
// public key. Immutable once constructed; Zero must be called when the
// caller is done with it so the private scalar does not linger in memory.
type KeyPair struct {
	priv [32]byte
	pub  PublicKey
}

// Public returns the keypair's public key.
func (k *KeyPair) Public() PublicKey { return k.pub }

// PrivateBytes returns a copy of the raw 32-byte private scalar. Zero
// does not clear copies already returned, so callers must not retain
// the returned array past the KeyPair's lifetime.
func (k *KeyPair) PrivateBytes() [32]byte { return k.priv }

// Nsec bech32-encodes the private key with the "nsec" hrp.
func (k *KeyPair) Nsec() (string, error) {
	return bech32.Encode("nsec", k.priv[:])
}

// Zero overwrites the private scalar in place. Callers should defer this
// as soon as a KeyPair is no longer needed.
func (k *KeyPair) Zero() {
	for i := range k.priv {
		k.priv[i] = 0
	}
}

func fromScalar(scalar [32]byte) (*KeyPair, error) {
	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(scalar[:])
	if overflow || s.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	_, pubKey := btcec.PrivKeyFromBytes(scalar[:])
	xOnly := schnorr.SerializePubKey(pubKey)
	kp := &KeyPair{priv: scalar}
	copy(kp.pub[:], xOnly)
	return kp, nil
}

// New generates a fresh KeyPair from a secure random scalar.
func New() (*KeyPair, error) {
	for {
		raw, err := hexutil.RandomBytes(32)
		if err != nil {
			return nil, err
		}
		var scalar [32]byte
		copy(scalar[:], raw)
		kp, err := fromScalar(scalar)
		if err == nil {
			return kp, nil
		}
		// Negligible-probability retry: scalar was zero or >= curve order.
	}
}

// FromHex constructs a KeyPair from a 32-byte hex private scalar.
func FromHex(s string) (*KeyPair, error) {
	b, err := hexutil.Decode(s, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	var scalar [32]byte
	copy(scalar[:], b)
	return fromScalar(scalar)
}

// FromNsec constructs a KeyPair from a bech32 nsec string.
func FromNsec(nsec string) (*KeyPair, error) {
	data, err := bech32.DecodeExpect("nsec", nsec)
	if err != nil {
		return nil, err
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("%w: nsec payload must be 32 bytes, got %d", ErrInvalidPrivateKey, len(data))
	}
	var scalar [32]byte
	copy(scalar[:], data)
	return fromScalar(scalar)
}

// FromScalar constructs a KeyPair directly from a 32-byte scalar, e.g. one
// produced by BIP-32 child derivation (see the mnemonic package).
func FromScalar(scalar [32]byte) (*KeyPair, error) {
	return fromScalar(scalar)
}
