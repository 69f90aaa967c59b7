// Package redis implements the shared CounterStore on Redis so that rate
// counters and cached responses are visible to every service instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CounterStore = (*CounterStore)(nil)

// commander is the subset of goredis.Cmdable the store needs.
type commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// CounterStore is a CounterStore backed by plain Redis strings with TTLs.
// Keys may be namespaced with a prefix so several deployments can share a
// Redis instance.
type CounterStore struct {
	c      commander
	prefix string
}

// NewCounterStore wraps an existing client.
func NewCounterStore(c commander, prefix string) *CounterStore {
	return &CounterStore{c: c, prefix: prefix}
}

// Dial connects to addr and verifies the connection with PING. The returned
// close func releases the client.
func Dial(ctx context.Context, addr, prefix string) (*CounterStore, func() error, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	store := NewCounterStore(client, prefix)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}

// Ping checks connectivity.
func (s *CounterStore) Ping(ctx context.Context) error {
	if err := s.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Get returns the value for key. A missing key is not an error.
func (s *CounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.c.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

// Put stores value with SET key value EX ttl.
func (s *CounterStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.c.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
