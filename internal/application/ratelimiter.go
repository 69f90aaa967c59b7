package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// DefaultRateLimit is the per-credential request budget per minute bucket.
const DefaultRateLimit = 65

// rateCounterTTL outlives the minute bucket so a late Record still lands.
const rateCounterTTL = 90 * time.Second

// RateLimiter enforces a fixed per-minute request budget per credential using
// counters in a shared store. Allow and Record are separate, non-atomic
// steps: concurrent callers may both pass Allow and over-admit by a few
// requests. Store failures fail open.
type RateLimiter struct {
	store driven.CounterStore
	limit int
	now   func() time.Time
}

// NewRateLimiter creates a limiter admitting limit requests per minute. A
// non-positive limit means DefaultRateLimit; a nil now means time.Now.
func NewRateLimiter(store driven.CounterStore, limit int, now func() time.Time) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{store: store, limit: limit, now: now}
}

// Limit returns the per-minute budget.
func (l *RateLimiter) Limit() int { return l.limit }

// Allow reports whether the credential is under budget in the current bucket.
func (l *RateLimiter) Allow(ctx context.Context, credentialID int64) bool {
	return l.allow(ctx, l.credentialKey(credentialID))
}

// Record counts one use of the credential in the current bucket.
func (l *RateLimiter) Record(ctx context.Context, credentialID int64) error {
	return l.record(ctx, l.credentialKey(credentialID))
}

// AllowSession is Allow for a raw session key. The key is hashed first and
// never reaches the store.
func (l *RateLimiter) AllowSession(ctx context.Context, rawKey string) bool {
	return l.allow(ctx, l.sessionKey(rawKey))
}

// RecordSession is Record for a raw session key.
func (l *RateLimiter) RecordSession(ctx context.Context, rawKey string) error {
	return l.record(ctx, l.sessionKey(rawKey))
}

func (l *RateLimiter) bucket() int64 {
	return l.now().Unix() / 60
}

func (l *RateLimiter) credentialKey(id int64) string {
	return "rate:" + strconv.FormatInt(id, 10) + ":" + strconv.FormatInt(l.bucket(), 10)
}

func (l *RateLimiter) sessionKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return "sk:" + hex.EncodeToString(sum[:]) + ":" + strconv.FormatInt(l.bucket(), 10)
}

func (l *RateLimiter) allow(ctx context.Context, key string) bool {
	n, err := l.count(ctx, key)
	if err != nil {
		slog.Warn("rate counter read failed, allowing", "error", err)
		return true
	}
	return n < l.limit
}

func (l *RateLimiter) record(ctx context.Context, key string) error {
	n, err := l.count(ctx, key)
	if err != nil {
		return err
	}
	if err := l.store.Put(ctx, key, strconv.Itoa(n+1), rateCounterTTL); err != nil {
		return fmt.Errorf("write rate counter: %w", err)
	}
	return nil
}

func (l *RateLimiter) count(ctx context.Context, key string) (int, error) {
	v, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read rate counter: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// A garbled counter restarts the bucket.
		return 0, nil
	}
	return n, nil
}
