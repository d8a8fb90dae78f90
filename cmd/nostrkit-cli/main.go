// Command nostrkit-cli is a small example client: it generates (or
// loads) a key pair, prints its npub/nsec, connects to a relay, and
// publishes a kind-1 note.
//
// Grounded on girino-tcp-over-nostr/main.go's flag-parsing and
// verbose-logging conventions (flag.Int/String/Bool, log.Fatal on bad
// input, log.Printf gated by -verbose).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/girino/nostrkit/event"
	"github.com/girino/nostrkit/keys"
	"github.com/girino/nostrkit/relay"
)

func main() {
	var relayURL = flag.String("relay", "wss://relay.damus.io", "Relay WebSocket URL to publish to")
	var nsec = flag.String("nsec", "", "Existing bech32 private key to use instead of generating one")
	var content = flag.String("content", "hello from nostrkit", "Note content to publish")
	var verbose = flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	if *relayURL == "" {
		log.Fatal("relay URL cannot be empty")
	}

	kp, err := loadOrGenerateKeys(*nsec)
	if err != nil {
		log.Fatalf("failed to set up keys: %v", err)
	}
	defer kp.Zero()

	npub, err := kp.Public().Npub()
	if err != nil {
		log.Fatalf("failed to encode npub: %v", err)
	}
	nsecStr, err := kp.Nsec()
	if err != nil {
		log.Fatalf("failed to encode nsec: %v", err)
	}
	fmt.Printf("Using public key: %s (%s)\n", kp.Public().Hex(), npub)
	fmt.Printf("Private key: %s\n", nsecStr)

	signed, err := event.Sign(event.UnsignedEvent{
		CreatedAt: time.Now().Unix(),
		Kind:      1,
		Tags:      event.Tags{},
		Content:   *content,
	}, kp)
	if err != nil {
		log.Fatalf("failed to sign event: %v", err)
	}
	fmt.Printf("Publishing event %s to %s\n", signed.ID, *relayURL)

	conn := relay.NewConnection(*relayURL, relay.DefaultConfig(), *verbose)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		log.Fatalf("failed to connect to relay: %v", err)
	}

	accepted, msg, err := conn.Publish(ctx, signed.ID, relay.EventMsg{Event: signed})
	if err != nil {
		log.Fatalf("publish failed: %v", err)
	}
	if !accepted {
		log.Fatalf("relay rejected event: %s", msg)
	}
	fmt.Printf("Event accepted by relay%s\n", suffixIfNotEmpty(msg))
}

func suffixIfNotEmpty(msg string) string {
	if msg == "" {
		return ""
	}
	return ": " + msg
}

func loadOrGenerateKeys(nsec string) (*keys.KeyPair, error) {
	if nsec == "" {
		return keys.New()
	}
	return keys.FromNsec(nsec)
}
