// Package event implements spec.md's C5/C6/C12 — NIP-01 event
// canonicalization and id hashing, BIP-340 Schnorr signing/verification,
// and the subscription Filter type.
//
// Grounded on other_examples/8a0ea02a_rdoiron-roostr (Serialize/ComputeID/
// VerifyID/VerifySignature split) and 77elements-noorsigner/crypto.go
// (createEventHash's use of a non-HTML-escaping json.Encoder to produce the
// canonical array), wired to the same
// github.com/btcsuite/btcd/btcec/v2/schnorr stack.
package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/girino/nostrkit/hexutil"
	"github.com/girino/nostrkit/keys"
)

var (
	ErrInvalidEventId     = errors.New("event: id does not match canonical hash")
	ErrInvalidSignature   = errors.New("event: invalid signature encoding")
	ErrSigningFailed      = errors.New("event: signing failed")
	ErrVerificationFailed = errors.New("event: signature verification failed")
)

// Tag is an ordered sequence of UTF-8 strings, e.g. ["p", <pubkey>].
type Tag []string

// Tags is an ordered sequence of Tag; the outer order is semantic and
// preserved verbatim through canonicalization.
type Tags []Tag

// UnsignedEvent is an Event missing id/sig, the input to Sign. When
// Kind == 14 this is called a rumor.
type UnsignedEvent struct {
	PubKey    keys.PublicKey `json:"pubkey"`
	CreatedAt int64          `json:"created_at"`
	Kind      int            `json:"kind"`
	Tags      Tags           `json:"tags"`
	Content   string         `json:"content"`
}

// Event is a fully signed Nostr event. Construct via Sign; treat as
// immutable once built.
type Event struct {
	ID        string         `json:"id"`
	PubKey    keys.PublicKey `json:"pubkey"`
	CreatedAt int64          `json:"created_at"`
	Kind      int            `json:"kind"`
	Tags      Tags           `json:"tags"`
	Content   string         `json:"content"`
	Sig       [64]byte       `json:"sig"`
}

// canonicalBytes renders the UTF-8 bytes of the JSON array
// [0, pubkey, created_at, kind, tags, content] per NIP-01: forward
// slashes are not escaped, HTML-sensitive runes (<, >, &) are emitted
// literally rather than \u-escaped, and there is no superfluous
// whitespace. Unicode outside ASCII passes through however
// encoding/json's UTF-8-safe escaper renders it, which is stable across
// calls and sufficient for a deterministic hash.
func canonicalBytes(pubkey keys.PublicKey, createdAt int64, kind int, tags Tags, content string) ([]byte, error) {
	if tags == nil {
		tags = Tags{}
	}
	arr := [6]interface{}{0, pubkey.Hex(), createdAt, kind, tags, content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&arr); err != nil {
		return nil, fmt.Errorf("event: canonicalize: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CanonicalBytes returns the exact bytes hashed to produce u.ID() once
// signed.
func (u UnsignedEvent) CanonicalBytes() ([]byte, error) {
	return canonicalBytes(u.PubKey, u.CreatedAt, u.Kind, u.Tags, u.Content)
}

// ID computes the lowercase-hex SHA-256 id of the unsigned event's
// canonical form.
func (u UnsignedEvent) ID() (string, error) {
	b, err := u.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hexutil.Encode(sum[:]), nil
}

// Sign computes the canonical id and produces a BIP-340 Schnorr
// signature over it with kp, yielding a signed Event.
func Sign(u UnsignedEvent, kp *keys.KeyPair) (*Event, error) {
	u.PubKey = kp.Public()
	id, err := u.ID()
	if err != nil {
		return nil, err
	}
	idBytes, err := hexutil.Decode(id, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	priv := kp.PrivateBytes()
	privKey, _ := btcec.PrivKeyFromBytes(priv[:])
	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	e := &Event{
		ID:        id,
		PubKey:    u.PubKey,
		CreatedAt: u.CreatedAt,
		Kind:      u.Kind,
		Tags:      u.Tags,
		Content:   u.Content,
	}
	copy(e.Sig[:], sig.Serialize())
	return e, nil
}

// Verify recomputes e's canonical id (ErrInvalidEventId on mismatch) and
// checks e.Sig against e.PubKey (ErrVerificationFailed on mismatch).
func Verify(e *Event) error {
	u := UnsignedEvent{PubKey: e.PubKey, CreatedAt: e.CreatedAt, Kind: e.Kind, Tags: e.Tags, Content: e.Content}
	wantID, err := u.ID()
	if err != nil {
		return err
	}
	if wantID != e.ID {
		return ErrInvalidEventId
	}

	idBytes, err := hexutil.Decode(e.ID, 32)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEventId, err)
	}
	pubKey, err := schnorr.ParsePubKey(e.PubKey[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	sig, err := schnorr.ParseSignature(e.Sig[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !sig.Verify(idBytes, pubKey) {
		return ErrVerificationFailed
	}
	return nil
}

// eventJSON mirrors Event's wire shape with string-typed id/pubkey/sig
// fields, matching the hex encodings used on the wire (§6).
type eventJSON struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = Tags{}
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		PubKey:    e.PubKey.Hex(),
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      tags,
		Content:   e.Content,
		Sig:       hexutil.Encode(e.Sig[:]),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var wire eventJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("event: decode: %w", err)
	}
	pub, err := keys.ParsePublicKeyHex(wire.PubKey)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(wire.Sig, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	e.ID = wire.ID
	e.PubKey = pub
	e.CreatedAt = wire.CreatedAt
	e.Kind = wire.Kind
	e.Tags = wire.Tags
	e.Content = wire.Content
	copy(e.Sig[:], sig)
	return nil
}
