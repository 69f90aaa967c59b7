package driven

import (
	"context"
	"time"
)

// CounterStore is the shared key-value store used for rate counters, cached
// responses and small markers. Implementations must be shared across service
// instances; keys expire after their TTL.
type CounterStore interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key with the given time-to-live.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}
