// Package nip44 implements spec.md's C7 — NIP-44 v2 sealed messages:
// ECDH conversation keys, HKDF-expanded per-message keys, a raw
// ChaCha20 keystream, and HMAC-SHA256 authentication over a
// length-prefixed, padded plaintext.
//
// Grounded on 77elements-noorsigner/crypto.go's GenerateConversationKey/
// Encrypt/Decrypt wiring (there delegated to go-nostr's nip44 package;
// here implemented directly) and
// other_examples/59e814c5_AliRezaBeigy-dns-as-doh's HKDF-based key
// derivation idiom, wired to golang.org/x/crypto/chacha20 and /hkdf per
// this module's own construction (spec.md §9's open question: a raw
// ChaCha20 stream rather than ChaCha20-Poly1305 with a discarded tag)
// and github.com/decred/dcrd/dcrec/secp256k1/v4 for the Jacobian
// scalar multiply behind the ECDH step.
package nip44

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/girino/nostrkit/hexutil"
	"github.com/girino/nostrkit/keys"
)

const (
	version          = byte(2)
	conversationSalt = "nip44-v2"
	expandedKeyLen   = 76
	minPlaintextLen  = 1
	maxPlaintextLen  = 65535
	minPayloadLen    = 1 + 32 + 32 + 32 // version + nonce + 32-byte min ciphertext + mac
)

var (
	ErrEncryptionFailed       = errors.New("nip44: encryption failed")
	ErrDecryptionFailed       = errors.New("nip44: decryption failed")
	ErrInvalidPayloadFormat   = errors.New("nip44: invalid payload format")
	ErrHmacVerificationFailed = errors.New("nip44: hmac verification failed")
	ErrInvalidPadding         = errors.New("nip44: invalid padding")
	ErrInvalidPlaintextLen    = errors.New("nip44: plaintext must be 1..65535 bytes")
)

// UnsupportedEncryptionVersionError reports a SealedPayload whose
// version byte isn't the one this package implements (2).
type UnsupportedEncryptionVersionError struct {
	Version byte
}

func (e *UnsupportedEncryptionVersionError) Error() string {
	return fmt.Sprintf("nip44: unsupported encryption version %d", e.Version)
}

// ConversationKey computes the symmetric 32-byte PRK shared by senderPriv
// and recipientPub (or, used the other way, by recipientPriv and
// senderPub — ECDH is symmetric, spec.md §4.5 testable property 4).
func ConversationKey(senderPriv [32]byte, recipientPub keys.PublicKey) ([32]byte, error) {
	sharedX, err := ecdhSharedX(senderPriv, recipientPub)
	if err != nil {
		return [32]byte{}, err
	}
	prk := hkdf.Extract(sha256.New, sharedX[:], []byte(conversationSalt))
	var key [32]byte
	copy(key[:], prk)
	return key, nil
}

// ecdhSharedX lifts the x-only recipient pubkey to a full point (even-y
// first, then odd-y), multiplies it by the sender's private scalar, and
// returns the shared point's x-coordinate.
func ecdhSharedX(priv [32]byte, pub keys.PublicKey) ([32]byte, error) {
	var point *secp256k1.PublicKey
	var err error
	for _, prefix := range [2]byte{0x02, 0x03} {
		compressed := append([]byte{prefix}, pub[:]...)
		point, err = secp256k1.ParsePubKey(compressed)
		if err == nil {
			break
		}
	}
	if point == nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	privKey := secp256k1.PrivKeyFromBytes(priv[:])
	var pt, result secp256k1.JacobianPoint
	point.AsJacobian(&pt)
	secp256k1.ScalarMultNonConst(&privKey.Key, &pt, &result)
	result.ToAffine()

	var shared [32]byte
	xBytes := result.X.Bytes()
	copy(shared[:], xBytes[:])
	return shared, nil
}

// messageKeys are the per-message secrets HKDF-Expand derives from the
// conversation key and a fresh random nonce.
type messageKeys struct {
	chachaKey   [32]byte
	chachaNonce [12]byte
	hmacKey     [32]byte
}

func deriveMessageKeys(conversationKey [32]byte, nonce [32]byte) (messageKeys, error) {
	reader := hkdf.Expand(sha256.New, conversationKey[:], nonce[:])
	expanded := make([]byte, expandedKeyLen)
	if _, err := io.ReadFull(reader, expanded); err != nil {
		return messageKeys{}, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	var mk messageKeys
	copy(mk.chachaKey[:], expanded[0:32])
	copy(mk.chachaNonce[:], expanded[32:44])
	copy(mk.hmacKey[:], expanded[44:76])
	return mk, nil
}

// paddedLen implements spec.md §4.5's padding schedule: 32 bytes for
// anything at or under 32 bytes, otherwise the next multiple of a
// power-of-two "chunk" size derived from the plaintext length.
func paddedLen(u int) int {
	if u <= 32 {
		return 32
	}
	chunk := 1 << (bits.Len(uint(u-1)) - 1)
	if chunk < 32 {
		chunk = 32
	}
	return chunk * ((u + chunk - 1) / chunk)
}

func pad(plaintext []byte) []byte {
	u := len(plaintext)
	out := make([]byte, 2+paddedLen(u))
	binary.BigEndian.PutUint16(out[:2], uint16(u))
	copy(out[2:2+u], plaintext)
	return out
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrInvalidPadding
	}
	u := int(binary.BigEndian.Uint16(padded[:2]))
	if u < minPlaintextLen || u > len(padded)-2 {
		return nil, ErrInvalidPadding
	}
	return padded[2 : 2+u], nil
}

// Seal encrypts plaintext (1..65535 bytes) from senderPriv to
// recipientPub, returning the base64 SealedPayload string.
func Seal(plaintext []byte, senderPriv [32]byte, recipientPub keys.PublicKey) (string, error) {
	if len(plaintext) < minPlaintextLen || len(plaintext) > maxPlaintextLen {
		return "", ErrInvalidPlaintextLen
	}
	convKey, err := ConversationKey(senderPriv, recipientPub)
	if err != nil {
		return "", err
	}

	var nonce [32]byte
	nonceBytes, err := hexutil.RandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	copy(nonce[:], nonceBytes)

	mk, err := deriveMessageKeys(convKey, nonce)
	if err != nil {
		return "", err
	}

	padded := pad(plaintext)
	ciphertext := make([]byte, len(padded))
	stream, err := chacha20.NewUnauthenticatedCipher(mk.chachaKey[:], mk.chachaNonce[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	stream.XORKeyStream(ciphertext, padded)

	mac := computeMAC(mk.hmacKey, nonce, ciphertext)

	payload := make([]byte, 0, 1+32+len(ciphertext)+32)
	payload = append(payload, version)
	payload = append(payload, nonce[:]...)
	payload = append(payload, ciphertext...)
	payload = append(payload, mac...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// Open reverses Seal. A payload that fails MAC verification always
// fails with ErrHmacVerificationFailed, never with a padding or
// decryption-specific error, so no timing side channel distinguishes
// "bad MAC" from "bad padding after a correct MAC".
func Open(payload string, recipientPriv [32]byte, senderPub keys.PublicKey) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayloadFormat, err)
	}
	if len(raw) < minPayloadLen {
		return nil, ErrInvalidPayloadFormat
	}
	if raw[0] != version {
		return nil, &UnsupportedEncryptionVersionError{Version: raw[0]}
	}

	var nonce [32]byte
	copy(nonce[:], raw[1:33])
	ciphertext := raw[33 : len(raw)-32]
	gotMAC := raw[len(raw)-32:]

	convKey, err := ConversationKey(recipientPriv, senderPub)
	if err != nil {
		return nil, err
	}
	mk, err := deriveMessageKeys(convKey, nonce)
	if err != nil {
		return nil, err
	}

	wantMAC := computeMAC(mk.hmacKey, nonce, ciphertext)
	if !hexutil.ConstantTimeEqual(gotMAC, wantMAC) {
		return nil, ErrHmacVerificationFailed
	}

	padded := make([]byte, len(ciphertext))
	stream, err := chacha20.NewUnauthenticatedCipher(mk.chachaKey[:], mk.chachaNonce[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	stream.XORKeyStream(padded, ciphertext)

	return unpad(padded)
}

func computeMAC(hmacKey [32]byte, nonce [32]byte, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, hmacKey[:])
	mac.Write(nonce[:])
	mac.Write(ciphertext)
	return mac.Sum(nil)
}
