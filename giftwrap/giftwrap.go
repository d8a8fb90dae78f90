// Package giftwrap implements spec.md's C8 — NIP-59 gift wrap / NIP-17
// private DMs: three-layer rumor -> seal -> gift-wrap construction with
// an ephemeral signing key and timestamp randomization.
//
// Grounded on girino-tcp-over-nostr/nostr.go's
// CreateEphemeralGiftWrappedEvent/createEphemeralRumor/
// createEphemeralSeal/createEphemeralGiftWrap/UnwrapEphemeralGiftWrap
// (the same rumor/seal/wrap layering, generalized from that file's
// ephemeral-kind TCP-proxy packets to arbitrary inner events) and
// other_examples/5d119681_paulborile-glienicke's nip59.go (CreateSeal/
// CreateGiftWrap/UnwrapGiftFull, including its ±jitter on created_at),
// wired to this module's own event and nip44 packages instead of
// go-nostr's.
package giftwrap

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/girino/nostrkit/event"
	"github.com/girino/nostrkit/hexutil"
	"github.com/girino/nostrkit/keys"
	"github.com/girino/nostrkit/nip44"
)

const (
	RumorKind    = 14
	SealKind     = 13
	GiftWrapKind = 1059

	maxTimestampJitterSeconds = 2 * 24 * 60 * 60
)

var (
	ErrInvalidData        = errors.New("giftwrap: malformed gift wrap data")
	ErrVerificationFailed = errors.New("giftwrap: seal signature verification failed")
	ErrWrongKind          = errors.New("giftwrap: unexpected event kind")
)

// Rumor is the unsigned inner event a gift wrap ultimately carries: the
// signed-event fields minus sig, with id retained (spec.md §4.6).
type Rumor struct {
	ID        string         `json:"id"`
	PubKey    keys.PublicKey `json:"pubkey"`
	CreatedAt int64          `json:"created_at"`
	Kind      int            `json:"kind"`
	Tags      event.Tags     `json:"tags"`
	Content   string         `json:"content"`
}

type rumorWire struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      event.Tags `json:"tags"`
	Content   string     `json:"content"`
}

func buildRumor(inner event.UnsignedEvent, sender *keys.KeyPair) (Rumor, []byte, error) {
	inner.PubKey = sender.Public()
	id, err := inner.ID()
	if err != nil {
		return Rumor{}, nil, err
	}
	r := Rumor{ID: id, PubKey: inner.PubKey, CreatedAt: inner.CreatedAt, Kind: inner.Kind, Tags: inner.Tags, Content: inner.Content}
	tags := r.Tags
	if tags == nil {
		tags = event.Tags{}
	}
	b, err := json.Marshal(rumorWire{ID: r.ID, PubKey: r.PubKey.Hex(), CreatedAt: r.CreatedAt, Kind: r.Kind, Tags: tags, Content: r.Content})
	if err != nil {
		return Rumor{}, nil, fmt.Errorf("giftwrap: encode rumor: %w", err)
	}
	return r, b, nil
}

func parseRumor(b []byte) (Rumor, error) {
	var wire rumorWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return Rumor{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	pub, err := keys.ParsePublicKeyHex(wire.PubKey)
	if err != nil {
		return Rumor{}, err
	}
	return Rumor{ID: wire.ID, PubKey: pub, CreatedAt: wire.CreatedAt, Kind: wire.Kind, Tags: wire.Tags, Content: wire.Content}, nil
}

// jitteredTimestamp returns now offset by a uniformly random amount in
// [-2 days, +2 days], per spec.md §4.6's "created_at = now ± rand(0..2
// days)".
func jitteredTimestamp(now int64) (int64, error) {
	raw, err := hexutil.RandomBytes(4)
	if err != nil {
		return 0, err
	}
	magnitude := int64(binary.BigEndian.Uint32(raw) % uint32(maxTimestampJitterSeconds+1))
	if raw[0]&1 == 0 {
		magnitude = -magnitude
	}
	return now + magnitude, nil
}

func sealInner(payloadJSON []byte, sender *keys.KeyPair, recipientPub keys.PublicKey, now int64) (*event.Event, error) {
	createdAt, err := jitteredTimestamp(now)
	if err != nil {
		return nil, err
	}
	sealPayload, err := nip44.Seal(payloadJSON, sender.PrivateBytes(), recipientPub)
	if err != nil {
		return nil, err
	}
	return event.Sign(event.UnsignedEvent{CreatedAt: createdAt, Kind: SealKind, Tags: event.Tags{}, Content: sealPayload}, sender)
}

func wrapSeal(seal *event.Event, recipientPub keys.PublicKey, now int64) (*event.Event, error) {
	sealJSON, err := seal.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("giftwrap: encode seal: %w", err)
	}
	ephemeral, err := keys.New()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Zero()

	createdAt, err := jitteredTimestamp(now)
	if err != nil {
		return nil, err
	}
	wrapPayload, err := nip44.Seal(sealJSON, ephemeral.PrivateBytes(), recipientPub)
	if err != nil {
		return nil, err
	}
	tags := event.Tags{{"p", recipientPub.Hex()}}
	return event.Sign(event.UnsignedEvent{CreatedAt: createdAt, Kind: GiftWrapKind, Tags: tags, Content: wrapPayload}, ephemeral)
}

// Wrap builds the rumor/seal/gift-wrap chain for inner, signed by sender,
// readable only by recipientPub. now is the current Unix timestamp
// (injected rather than read internally so callers choose the base that
// the random jitter is applied to; the jitter itself is always random).
func Wrap(inner event.UnsignedEvent, sender *keys.KeyPair, recipientPub keys.PublicKey, now int64) (*event.Event, error) {
	_, rumorJSON, err := buildRumor(inner, sender)
	if err != nil {
		return nil, err
	}
	seal, err := sealInner(rumorJSON, sender, recipientPub, now)
	if err != nil {
		return nil, err
	}
	return wrapSeal(seal, recipientPub, now)
}

// Unwrap reverses Wrap: it opens the outer payload with recipient's key
// (using wrap.PubKey, the ephemeral key, as the counterparty), verifies
// the seal's own signature to authenticate the true sender, then opens
// the inner payload with the seal's sender pubkey. A seal whose
// signature fails to verify is rejected even if both NIP-44 opens
// succeed (spec.md §4.6).
func Unwrap(wrap *event.Event, recipient *keys.KeyPair) (keys.PublicKey, Rumor, error) {
	if wrap.Kind != GiftWrapKind {
		return keys.PublicKey{}, Rumor{}, fmt.Errorf("%w: gift wrap must be kind %d, got %d", ErrWrongKind, GiftWrapKind, wrap.Kind)
	}

	sealJSON, err := nip44.Open(wrap.Content, recipient.PrivateBytes(), wrap.PubKey)
	if err != nil {
		return keys.PublicKey{}, Rumor{}, err
	}
	var seal event.Event
	if err := seal.UnmarshalJSON(sealJSON); err != nil {
		return keys.PublicKey{}, Rumor{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if seal.Kind != SealKind {
		return keys.PublicKey{}, Rumor{}, fmt.Errorf("%w: seal must be kind %d, got %d", ErrWrongKind, SealKind, seal.Kind)
	}
	if err := event.Verify(&seal); err != nil {
		return keys.PublicKey{}, Rumor{}, ErrVerificationFailed
	}

	rumorJSON, err := nip44.Open(seal.Content, recipient.PrivateBytes(), seal.PubKey)
	if err != nil {
		return keys.PublicKey{}, Rumor{}, err
	}
	rumor, err := parseRumor(rumorJSON)
	if err != nil {
		return keys.PublicKey{}, Rumor{}, err
	}
	return seal.PubKey, rumor, nil
}

// WrapGroup builds one kind-14 rumor addressed to every recipient (plus
// an optional subject and reply e-tag), then wraps it once per
// recipient and once more for the sender, so the sender retains a copy
// (spec.md §4.6 "Group DMs").
func WrapGroup(content string, recipients []keys.PublicKey, sender *keys.KeyPair, subject, replyToEventID string, now int64) ([]*event.Event, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient required", ErrInvalidData)
	}
	tags := make(event.Tags, 0, len(recipients)+2)
	for _, r := range recipients {
		tags = append(tags, event.Tag{"p", r.Hex()})
	}
	if subject != "" {
		tags = append(tags, event.Tag{"subject", subject})
	}
	if replyToEventID != "" {
		tags = append(tags, event.Tag{"e", replyToEventID, "", "reply"})
	}
	inner := event.UnsignedEvent{Kind: RumorKind, Tags: tags, Content: content}

	wraps := make([]*event.Event, 0, len(recipients)+1)
	for _, r := range recipients {
		w, err := Wrap(inner, sender, r, now)
		if err != nil {
			return nil, err
		}
		wraps = append(wraps, w)
	}
	selfWrap, err := Wrap(inner, sender, sender.Public(), now)
	if err != nil {
		return nil, err
	}
	wraps = append(wraps, selfWrap)
	return wraps, nil
}
