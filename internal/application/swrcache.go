package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/port/driven"
	"github.com/sftdash/tornpanel/internal/telemetry"
)

// defaultRefreshTimeout bounds a background refresh, which outlives the
// request that triggered it.
const defaultRefreshTimeout = 30 * time.Second

// ResponseCache is a stale-while-revalidate cache over the counter store.
// Entries live under "cache:<key>" and expire from the store at their hard
// TTL. Concurrent refreshes of one key are not coalesced.
type ResponseCache struct {
	store          driven.CounterStore
	metrics        *telemetry.Metrics
	now            func() time.Time
	refreshTimeout time.Duration
}

// NewResponseCache creates a cache. metrics may be nil; a nil now means
// time.Now.
func NewResponseCache(store driven.CounterStore, metrics *telemetry.Metrics, now func() time.Time) *ResponseCache {
	if now == nil {
		now = time.Now
	}
	return &ResponseCache{store: store, metrics: metrics, now: now, refreshTimeout: defaultRefreshTimeout}
}

type cacheEntry struct {
	Data      json.RawMessage `json:"data"`
	FetchedAt int64           `json:"fetched_at"`
}

// GetOrRefresh returns the cached value for key while it is younger than
// soft. Between soft and hard it returns the stale value and refreshes the
// entry in the background. Past hard, or on a miss, it fetches
// synchronously; only this path returns fetch errors.
func GetOrRefresh[T any](ctx context.Context, c *ResponseCache, key string, soft, hard time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	storeKey := "cache:" + key

	if cached, age, ok := lookup[T](ctx, c, storeKey); ok {
		switch {
		case age < soft:
			c.metrics.CacheLookup(telemetry.CacheFresh)
			return cached, nil
		case age < hard:
			c.metrics.CacheLookup(telemetry.CacheStale)
			go c.refresh(ctx, storeKey, hard, func(ctx context.Context) (any, error) { return fetch(ctx) })
			return cached, nil
		}
	}

	c.metrics.CacheLookup(telemetry.CacheMiss)
	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	if err := c.put(ctx, storeKey, v, hard); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	return v, nil
}

// lookup reads and decodes an entry. Read and decode failures count as a
// miss.
func lookup[T any](ctx context.Context, c *ResponseCache, storeKey string) (T, time.Duration, bool) {
	var zero T
	raw, ok, err := c.store.Get(ctx, storeKey)
	if err != nil {
		slog.Warn("cache read failed", "key", storeKey, "error", err)
		return zero, 0, false
	}
	if !ok {
		return zero, 0, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return zero, 0, false
	}
	var v T
	if err := json.Unmarshal(entry.Data, &v); err != nil {
		return zero, 0, false
	}
	age := c.now().Sub(time.UnixMilli(entry.FetchedAt))
	return v, age, true
}

func (c *ResponseCache) put(ctx context.Context, storeKey string, v any, hard time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	entry, err := json.Marshal(cacheEntry{Data: data, FetchedAt: c.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.store.Put(ctx, storeKey, string(entry), hard); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// refresh runs detached from the triggering request. It never panics out
// and leaves the existing entry untouched on failure.
func (c *ResponseCache) refresh(parent context.Context, storeKey string, hard time.Duration, fetch func(context.Context) (any, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.CacheRefreshError()
			slog.Error("cache refresh panicked", "key", storeKey, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.refreshTimeout)
	defer cancel()

	v, err := fetch(ctx)
	if err == nil {
		err = c.put(ctx, storeKey, v, hard)
	}
	if err != nil {
		c.metrics.CacheRefreshError()
		slog.Debug("cache refresh failed", "key", storeKey, "error", err)
	}
}
