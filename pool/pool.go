// Package pool implements spec.md's C11 — a relay pool that fans
// publish/subscribe operations out across multiple relay.Connection
// actors, deduplicates inbound events, and resubscribes active
// subscriptions whenever a relay reconnects.
//
// Grounded on girino-tcp-over-nostr/nostr.go's NostrRelayHandler, which
// wraps a pool of relays behind one struct and merges each relay's
// events into a single buffered channel; generalized here into
// multiple independently-reconnecting relay.Connection actors plus an
// explicit, size-and-TTL-bounded dedup cache built on
// github.com/puzpuzpuz/xsync/v3, which the teacher imports but never
// exercises as a cache (it's only an indirect transitive dependency in
// the teacher's go.mod through go-nostr).
package pool

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/girino/nostrkit/event"
	"github.com/girino/nostrkit/relay"
)

const (
	defaultDedupTTL        = 5 * time.Minute
	defaultDedupMaxSize    = 10000
	dedupCleanupInterval   = 60 * time.Second
	subscribeSettleDelay   = 10 * time.Millisecond
)

// Pool fans operations out across a set of relay.Connection actors
// keyed by URL, deduplicates inbound events, and tracks active
// subscriptions so they can be replayed against a relay that
// reconnects.
type Pool struct {
	verbose     bool
	relayConfig relay.Config

	mu    sync.RWMutex
	conns map[string]*relay.Connection

	subsMu sync.RWMutex
	subs   map[string]*Subscription

	dedup          *xsync.MapOf[string, int64]
	dedupTTL       time.Duration
	dedupMaxSize   int
	lastCleanup    time.Time
	lastCleanupMu  sync.Mutex
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithVerbose enables log.Printf diagnostics, matching the teacher's
// verbose-gated logging convention.
func WithVerbose(v bool) Option { return func(p *Pool) { p.verbose = v } }

// WithRelayConfig overrides the relay.Config (timeouts and reconnect
// policy) applied to every relay.Connection the pool creates — the
// pool's "default_relay_config" (spec.md §6).
func WithRelayConfig(cfg relay.Config) Option { return func(p *Pool) { p.relayConfig = cfg } }

// WithDedup overrides the deduplication cache's TTL and maximum size.
func WithDedup(ttl time.Duration, maxSize int) Option {
	return func(p *Pool) { p.dedupTTL = ttl; p.dedupMaxSize = maxSize }
}

// New builds an empty Pool. Use Add to register relays.
func New(opts ...Option) *Pool {
	p := &Pool{
		conns:        make(map[string]*relay.Connection),
		subs:         make(map[string]*Subscription),
		dedup:        xsync.NewMapOf[string, int64](),
		dedupTTL:     defaultDedupTTL,
		dedupMaxSize: defaultDedupMaxSize,
		lastCleanup:  time.Time{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add registers a relay URL with the pool if not already present. It
// does not dial; call ConnectAll (or Connect for that single URL) to
// do that.
func (p *Pool) Add(url string) *relay.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[url]; ok {
		return c
	}
	c := relay.NewConnection(url, p.relayConfig, p.verbose)
	p.conns[url] = c
	return c
}

// Remove disconnects and forgets the relay at url.
func (p *Pool) Remove(url string) {
	p.mu.Lock()
	c, ok := p.conns[url]
	if ok {
		delete(p.conns, url)
	}
	p.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Connections returns a snapshot of the pool's current relay
// connections.
func (p *Pool) Connections() []*relay.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*relay.Connection, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c)
	}
	return out
}

// ConnectAll dials every registered relay concurrently. Per-relay
// failures are logged (if verbose) rather than aborting the others;
// the returned error is nil unless every relay failed to connect.
func (p *Pool) ConnectAll(ctx context.Context) error {
	conns := p.Connections()
	if len(conns) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	var failures int64
	for _, c := range conns {
		wg.Add(1)
		go func(c *relay.Connection) {
			defer wg.Done()
			if err := c.Connect(ctx); err != nil {
				atomic.AddInt64(&failures, 1)
				if p.verbose {
					log.Printf("pool: connect %s: %v", c.URL(), err)
				}
			}
		}(c)
	}
	wg.Wait()
	if int(atomic.LoadInt64(&failures)) == len(conns) {
		return ErrAllRelaysFailed
	}
	return nil
}

// Close disconnects every relay and all active subscriptions.
func (p *Pool) Close() {
	p.subsMu.Lock()
	subs := p.subs
	p.subs = make(map[string]*Subscription)
	p.subsMu.Unlock()
	for _, s := range subs {
		s.close()
	}

	for _, c := range p.Connections() {
		c.Close()
	}
}

// Publish fans an EVENT frame out to every connected relay and
// succeeds once at least one relay returns OK/accepted=true, per
// spec.md §4.9's fan-out semantics.
func (p *Pool) Publish(ctx context.Context, e *event.Event) (PublishResult, error) {
	conns := p.Connections()
	result := PublishResult{PerRelay: make(map[string]RelayPublishResult, len(conns))}
	if len(conns) == 0 {
		return result, ErrNoRelays
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range conns {
		if c.State() != relay.Connected {
			mu.Lock()
			result.PerRelay[c.URL()] = RelayPublishResult{Err: relay.ErrNotConnected}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(c *relay.Connection) {
			defer wg.Done()
			ok, msg, err := c.Publish(ctx, e.ID, relay.EventMsg{Event: e})
			mu.Lock()
			result.PerRelay[c.URL()] = RelayPublishResult{Accepted: ok, Message: msg, Err: err}
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	for _, r := range result.PerRelay {
		if r.Err == nil && r.Accepted {
			result.Accepted = true
			break
		}
	}
	if !result.Accepted {
		return result, ErrPublishRejectedByAll
	}
	return result, nil
}

// PublishResult summarizes a fan-out publish across every relay in the
// pool at the time Publish was called.
type PublishResult struct {
	Accepted bool
	PerRelay map[string]RelayPublishResult
}

// RelayPublishResult is one relay's verdict within a PublishResult.
type RelayPublishResult struct {
	Accepted bool
	Message  string
	Err      error
}

func (p *Pool) rememberSubscription(s *Subscription) {
	p.subsMu.Lock()
	p.subs[s.id] = s
	p.subsMu.Unlock()
}

func (p *Pool) forgetSubscription(id string) {
	p.subsMu.Lock()
	delete(p.subs, id)
	p.subsMu.Unlock()
}

// isDuplicate reports whether id has already been seen within the
// dedup TTL, recording it as seen either way. Cleanup runs lazily: at
// most once per dedupCleanupInterval, it drops expired entries and, if
// the cache is still over dedupMaxSize, evicts the oldest entries
// until it is not (spec.md §9's resolved open question: bounded
// overshoot between cleanups is acceptable, not evicted unconditionally
// on every insert).
func (p *Pool) isDuplicate(id string) bool {
	now := time.Now()
	ts, existed := p.dedup.LoadOrStore(id, now.UnixNano())
	if existed && ts < now.Add(-p.dedupTTL).UnixNano() {
		// Expired but not yet swept by maybeCleanup: treat as unseen.
		p.dedup.Store(id, now.UnixNano())
		existed = false
	}
	p.maybeCleanup(now)
	return existed
}

func (p *Pool) maybeCleanup(now time.Time) {
	p.lastCleanupMu.Lock()
	due := now.Sub(p.lastCleanup) > dedupCleanupInterval
	if due {
		p.lastCleanup = now
	}
	p.lastCleanupMu.Unlock()
	if !due {
		return
	}

	cutoff := now.Add(-p.dedupTTL).UnixNano()
	var live []dedupEntry
	p.dedup.Range(func(id string, ts int64) bool {
		if ts < cutoff {
			p.dedup.Delete(id)
		} else {
			live = append(live, dedupEntry{id, ts})
		}
		return true
	})

	if len(live) <= p.dedupMaxSize {
		return
	}
	sortByTimestamp(live)
	excess := len(live) - p.dedupMaxSize
	for i := 0; i < excess; i++ {
		p.dedup.Delete(live[i].id)
	}
}

type dedupEntry struct {
	id string
	ts int64
}

func sortByTimestamp(entries []dedupEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].ts < entries[j-1].ts; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
