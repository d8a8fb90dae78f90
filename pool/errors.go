package pool

import (
	"errors"
	"fmt"
)

// Sentinel errors, exported so callers can match them with errors.Is
// (spec.md §7).
var (
	ErrNoRelays             = errors.New("pool: no relays registered")
	ErrAllRelaysFailed      = errors.New("pool: failed to connect to any relay")
	ErrPublishRejectedByAll = errors.New("pool: event rejected or unreachable on every relay")
)

// SubscriptionNotFoundError is returned by Unsubscribe when sub_id names
// no subscription the pool currently tracks (spec.md §7).
type SubscriptionNotFoundError struct {
	SubID string
}

func (e *SubscriptionNotFoundError) Error() string {
	return fmt.Sprintf("pool: subscription %q not found", e.SubID)
}
