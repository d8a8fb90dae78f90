package giftwrap

import (
	"testing"

	"github.com/girino/nostrkit/event"
	"github.com/girino/nostrkit/keys"
)

func newPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.New()
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	return kp
}

func TestWrapUnwrapRoundTripScenarioS5(t *testing.T) {
	alice := newPair(t)
	defer alice.Zero()
	bob := newPair(t)
	defer bob.Zero()

	inner := event.UnsignedEvent{Kind: RumorKind, Tags: event.Tags{{"p", bob.Public().Hex()}}, Content: "hey bob"}
	wrap, err := Wrap(inner, alice, bob.Public(), 1700000000)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if wrap.Kind != GiftWrapKind {
		t.Fatalf("wrap.Kind = %d, want %d", wrap.Kind, GiftWrapKind)
	}
	if len(wrap.Tags) != 1 || wrap.Tags[0][0] != "p" || wrap.Tags[0][1] != bob.Public().Hex() {
		t.Fatalf("wrap.Tags = %v, want single p-tag for bob", wrap.Tags)
	}
	if wrap.PubKey == alice.Public() {
		t.Fatal("gift wrap must be signed by an ephemeral key, not the sender")
	}

	senderPub, rumor, err := Unwrap(wrap, bob)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if senderPub != alice.Public() {
		t.Fatalf("senderPub = %x, want alice's pubkey", senderPub)
	}
	if rumor.Content != "hey bob" {
		t.Fatalf("rumor.Content = %q, want %q", rumor.Content, "hey bob")
	}
}

func TestUnwrapRejectsWrongKind(t *testing.T) {
	alice := newPair(t)
	defer alice.Zero()
	bob := newPair(t)
	defer bob.Zero()

	notAWrap, err := event.Sign(event.UnsignedEvent{Kind: 1, Content: "not a wrap"}, alice)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, _, err := Unwrap(notAWrap, bob); err == nil {
		t.Fatal("expected Unwrap to reject a non-1059 event")
	}
}

func TestWrapGroupScenarioS6(t *testing.T) {
	alice := newPair(t)
	defer alice.Zero()
	bob := newPair(t)
	defer bob.Zero()
	carol := newPair(t)
	defer carol.Zero()

	wraps, err := WrapGroup("hi both", []keys.PublicKey{bob.Public(), carol.Public()}, alice, "", "", 1700000000)
	if err != nil {
		t.Fatalf("WrapGroup: %v", err)
	}
	if len(wraps) != 3 {
		t.Fatalf("got %d wraps, want 3 (bob, carol, sender copy)", len(wraps))
	}

	recipients := []*keys.KeyPair{bob, carol, alice}
	for i, w := range wraps {
		_, rumor, err := Unwrap(w, recipients[i])
		if err != nil {
			t.Fatalf("Unwrap(wrap %d): %v", i, err)
		}
		if rumor.Content != "hi both" {
			t.Fatalf("wrap %d: content = %q, want %q", i, rumor.Content, "hi both")
		}
		if rumor.Kind != RumorKind {
			t.Fatalf("wrap %d: rumor.Kind = %d, want %d", i, rumor.Kind, RumorKind)
		}
	}
}

func TestWrapGroupRejectsNoRecipients(t *testing.T) {
	alice := newPair(t)
	defer alice.Zero()
	if _, err := WrapGroup("x", nil, alice, "", "", 1700000000); err == nil {
		t.Fatal("expected error for empty recipient list")
	}
}
