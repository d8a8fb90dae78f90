// Package mnemonic implements spec.md's C4 — NIP-06 BIP-39/BIP-32
// derivation of a Nostr key from a mnemonic phrase along the path
// m/44'/1237'/account'/0/0.
//
// Grounded on the corpus's BIP-32/39 usage (see
// other_examples/.../bitkarrot-higher__keyderivation-hdkey.go.go, which
// chains hdkeychain.Derive calls exactly along this path) and wired to the
// same github.com/btcsuite/btcd/btcutil/hdkeychain +
// github.com/tyler-smith/go-bip39 stack. The wordlist and PBKDF2 seed
// stretching come from go-bip39; the entropy<->mnemonic bit packing and
// checksum (spec.md §4.3) are implemented directly against that wordlist
// so this package owns the exact algorithm rather than trusting an
// opaque library round trip.
package mnemonic

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/girino/nostrkit/keys"
)

var (
	ErrInvalidMnemonic         = errors.New("mnemonic: invalid mnemonic")
	ErrInvalidMnemonicChecksum = errors.New("mnemonic: checksum does not validate")
)

// InvalidMnemonicWordError names the first word that isn't in the BIP-39
// English wordlist.
type InvalidMnemonicWordError struct {
	Word string
}

func (e *InvalidMnemonicWordError) Error() string {
	return fmt.Sprintf("mnemonic: word %q is not in the wordlist", e.Word)
}

var wordIndex = buildWordIndex()

func buildWordIndex() map[string]int {
	words := bip39.GetWordList()
	m := make(map[string]int, len(words))
	for i, w := range words {
		m[w] = i
	}
	return m
}

// validEntropyLength reports whether n is one of the byte lengths spec.md
// §4.3 allows: 16, 20, 24, 28, 32 (12/15/18/21/24 words respectively).
func validEntropyLength(n int) bool {
	switch n {
	case 16, 20, 24, 28, 32:
		return true
	}
	return false
}

// EntropyToMnemonic packs entropy (16/20/24/28/32 bytes) plus its
// SHA-256-derived checksum into a sequence of 11-bit word indices.
func EntropyToMnemonic(entropy []byte) (string, error) {
	if !validEntropyLength(len(entropy)) {
		return "", fmt.Errorf("%w: entropy must be 16/20/24/28/32 bytes, got %d", ErrInvalidMnemonic, len(entropy))
	}
	wordlist := bip39.GetWordList()

	entropyBits := len(entropy) * 8
	checksumBits := entropyBits / 32
	hash := sha256.Sum256(entropy)
	// checksumBits is at most 8 (32-byte entropy), so the checksum always
	// fits in the hash's leading byte.
	checksumValue := uint64(hash[0]) >> (8 - uint(checksumBits))

	totalBits := entropyBits + checksumBits
	combined := new(big.Int).SetBytes(entropy)
	combined.Lsh(combined, uint(checksumBits))
	combined.Or(combined, big.NewInt(int64(checksumValue)))

	numWords := totalBits / 11
	words := make([]string, numWords)
	mask := big.NewInt(0x7FF)
	group := new(big.Int)
	for i := 0; i < numWords; i++ {
		shift := uint(totalBits - (i+1)*11)
		group.Rsh(combined, shift)
		group.And(group, mask)
		words[i] = wordlist[group.Uint64()]
	}
	return strings.Join(words, " "), nil
}

// MnemonicToEntropy reverses EntropyToMnemonic, validating word count,
// wordlist membership, and the embedded checksum.
func MnemonicToEntropy(mnemonic string) ([]byte, error) {
	words := strings.Fields(mnemonic)
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return nil, fmt.Errorf("%w: must have 12/15/18/21/24 words, got %d", ErrInvalidMnemonic, len(words))
	}

	indices := make([]int, len(words))
	for i, w := range words {
		idx, ok := wordIndex[w]
		if !ok {
			return nil, &InvalidMnemonicWordError{Word: w}
		}
		indices[i] = idx
	}

	totalBits := len(words) * 11
	entropyBits := totalBits * 32 / 33
	checksumBits := totalBits - entropyBits

	combined := new(big.Int)
	for _, idx := range indices {
		combined.Lsh(combined, 11)
		combined.Or(combined, big.NewInt(int64(idx)))
	}

	entropyValue := new(big.Int).Rsh(combined, uint(checksumBits))
	entropy := entropyValue.Bytes()
	// big.Int.Bytes() drops leading zero bytes; pad back to the expected
	// fixed width.
	full := make([]byte, entropyBits/8)
	copy(full[len(full)-len(entropy):], entropy)

	checksumMask := new(big.Int).Lsh(big.NewInt(1), uint(checksumBits))
	checksumMask.Sub(checksumMask, big.NewInt(1))
	gotChecksum := new(big.Int).And(combined, checksumMask).Uint64()

	hash := sha256.Sum256(full)
	wantChecksum := uint64(hash[0]) >> (8 - uint(checksumBits))
	if gotChecksum != wantChecksum {
		return nil, ErrInvalidMnemonicChecksum
	}
	return full, nil
}

// Validate reports whether mnemonic has a valid word count, only known
// words, and a correct checksum.
func Validate(mnemonic string) error {
	_, err := MnemonicToEntropy(mnemonic)
	return err
}

// Generate creates a new mnemonic from bitSize bits of secure entropy
// (one of 128/160/192/224/256).
func Generate(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return EntropyToMnemonic(entropy)
}

// Seed derives the 64-byte BIP-39 seed from a mnemonic and optional
// passphrase via PBKDF2-HMAC-SHA512 with 2048 iterations (spec.md §4.3).
// Neither input is NFKD-normalized: both are passed to PBKDF2 exactly as
// given.
func Seed(mnemonic, passphrase string) ([]byte, error) {
	if err := Validate(mnemonic); err != nil {
		return nil, err
	}
	return bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
}

// deriveNostrKey derives along m/44'/1237'/account'/0/0 per NIP-06. Per spec.md
// §4.3, a child whose IL >= curve order or whose derived key is zero is
// treated as unrecoverable rather than retried at the next index;
// hdkeychain.ErrInvalidChild already signals exactly that condition.
func deriveNostrKey(seed []byte, account uint32) (*keys.KeyPair, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, wrapDeriveErr("master key", err)
	}

	purpose, err := master.Derive(hdkeychain.HardenedKeyStart + 44)
	if err != nil {
		return nil, wrapDeriveErr("purpose", err)
	}
	coinType, err := purpose.Derive(hdkeychain.HardenedKeyStart + 1237)
	if err != nil {
		return nil, wrapDeriveErr("coin type", err)
	}
	acct, err := coinType.Derive(hdkeychain.HardenedKeyStart + account)
	if err != nil {
		return nil, wrapDeriveErr("account", err)
	}
	change, err := acct.Derive(0)
	if err != nil {
		return nil, wrapDeriveErr("change", err)
	}
	addressKey, err := change.Derive(0)
	if err != nil {
		return nil, wrapDeriveErr("address index", err)
	}

	privKey, err := addressKey.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("mnemonic: extract private key: %w", err)
	}
	var scalar [32]byte
	copy(scalar[:], privKey.Serialize())
	return keys.FromScalar(scalar)
}

// DeriveKeyPair derives the Nostr KeyPair for the given mnemonic,
// passphrase, and BIP-44 account index along m/44'/1237'/account'/0/0.
func DeriveKeyPair(mnemonic, passphrase string, account uint32) (*keys.KeyPair, error) {
	seed, err := Seed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return deriveNostrKey(seed, account)
}

// DeriveKeyPairFromSeed derives directly from a pre-computed 64-byte seed,
// skipping mnemonic validation — useful when the seed was produced
// elsewhere (e.g. restored from a backup).
func DeriveKeyPairFromSeed(seed []byte, account uint32) (*keys.KeyPair, error) {
	return deriveNostrKey(seed, account)
}

func wrapDeriveErr(step string, err error) error {
	if errors.Is(err, hdkeychain.ErrInvalidChild) {
		return fmt.Errorf("mnemonic: derive %s: %w", step, keys.ErrInvalidPrivateKey)
	}
	return fmt.Errorf("mnemonic: derive %s: %w", step, err)
}
