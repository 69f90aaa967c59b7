package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
	"github.com/sftdash/tornpanel/internal/telemetry"
)

// MaxIterations caps the pages fetched by one sync run.
const MaxIterations = 1000

// Fetcher performs a brokered upstream request and returns the JSON body.
// *Broker satisfies it.
type Fetcher interface {
	FetchJSON(ctx context.Context, req model.BrokerRequest) (json.RawMessage, error)
}

// Feed adapts one paginated upstream resource to the sync engine.
type Feed interface {
	// Entity names the cursor namespace, for example "attacks".
	Entity() string

	// DefaultLookback is how far back a first sync reaches when neither a
	// cursor nor a range is given.
	DefaultLookback() time.Duration

	// PageRequest builds the request for one page.
	PageRequest(scope model.SyncScope, key string, since int64, cursor string) (model.BrokerRequest, error)

	// Decode normalizes a page into records and its continuation token.
	Decode(body []byte, scope model.SyncScope, key string) ([]model.Record, string, error)

	// Store upserts one record. It must be idempotent on the record id.
	Store(ctx context.Context, rec model.Record) error
}

// Engine drives incremental, cursor-tracked pulls of paginated feeds.
type Engine struct {
	fetcher Fetcher
	cursors driven.CursorStore
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewEngine creates a sync engine. metrics may be nil; a nil now means
// time.Now.
func NewEngine(fetcher Fetcher, cursors driven.CursorStore, metrics *telemetry.Metrics, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{fetcher: fetcher, cursors: cursors, metrics: metrics, now: now}
}

// Sync pulls every page newer than the resolved start point, upserts each
// record and then advances the cursor. The cursor is written once, after the
// page loop; a fetch or store error returns without touching it. Hitting
// MaxIterations is a soft stop reported through SyncResult.Truncated.
func (e *Engine) Sync(ctx context.Context, feed Feed, scope model.SyncScope, scopeKey string, opts model.SyncOptions) (model.SyncResult, error) {
	entity := feed.Entity()
	result := model.SyncResult{Entity: entity}

	cur, err := e.cursors.Get(ctx, entity, scope, scopeKey)
	if err != nil {
		e.metrics.SyncRun(entity, telemetry.SyncError, 0)
		return result, fmt.Errorf("load %s cursor: %w", entity, err)
	}

	since := e.since(feed, cur, opts)
	lastSeen := since
	var lastID *string
	if cur != nil {
		lastID = cur.LastID
	}

	var (
		newest int64
		seen   bool
	)

	var token string
	if opts.ResumeFromLastID && lastID != nil {
		token = *lastID
	}

	for {
		if result.Pages >= MaxIterations {
			result.Truncated = true
			slog.Warn("sync stopped early",
				"entity", entity, "scope", scope, "key", scopeKey,
				"pages", result.Pages, "error", ErrSyncIterationExhausted)
			break
		}

		req, err := feed.PageRequest(scope, scopeKey, since, token)
		if err != nil {
			e.metrics.SyncRun(entity, telemetry.SyncError, result.Imported)
			return result, fmt.Errorf("build %s page request: %w", entity, err)
		}
		body, err := e.fetcher.FetchJSON(ctx, req)
		if err != nil {
			e.metrics.SyncRun(entity, telemetry.SyncError, result.Imported)
			return result, fmt.Errorf("fetch %s page %d: %w", entity, result.Pages+1, err)
		}
		result.Pages++

		records, next, err := feed.Decode(body, scope, scopeKey)
		if err != nil {
			e.metrics.SyncRun(entity, telemetry.SyncError, result.Imported)
			return result, fmt.Errorf("decode %s page %d: %w", entity, result.Pages, err)
		}

		for _, rec := range records {
			if err := feed.Store(ctx, rec); err != nil {
				e.metrics.SyncRun(entity, telemetry.SyncError, result.Imported)
				return result, fmt.Errorf("store %s %s: %w", entity, rec.NaturalID(), err)
			}
			result.Imported++
			// lastID follows the newest record, so a rerun that sees the
			// same records in any order leaves it unchanged.
			if ts := rec.OccurredAt(); !seen || ts >= newest {
				seen = true
				newest = ts
				id := rec.NaturalID()
				lastID = &id
			}
		}

		if next == "" {
			break
		}
		token = next
	}

	if seen && newest > lastSeen {
		lastSeen = newest
	}
	if lastSeen <= 0 {
		lastSeen = e.now().Unix()
	}
	if cur != nil && cur.LastSyncedAt > lastSeen {
		lastSeen = cur.LastSyncedAt
	}

	err = e.cursors.Set(ctx, model.Cursor{
		Entity:       entity,
		Scope:        scope,
		Key:          scopeKey,
		LastSyncedAt: lastSeen,
		LastID:       lastID,
	})
	if err != nil {
		e.metrics.SyncRun(entity, telemetry.SyncError, result.Imported)
		return result, fmt.Errorf("save %s cursor: %w", entity, err)
	}

	result.LastSyncedAt = lastSeen
	result.LastID = lastID

	outcome := telemetry.SyncOK
	if result.Truncated {
		outcome = telemetry.SyncTruncated
	}
	e.metrics.SyncRun(entity, outcome, result.Imported)
	slog.Info("sync complete",
		"entity", entity, "scope", scope, "key", scopeKey,
		"imported", result.Imported, "pages", result.Pages, "last_synced_at", lastSeen)
	return result, nil
}

// since picks the start point: explicit override, then the stored cursor,
// then the requested range, then the feed's default lookback.
func (e *Engine) since(feed Feed, cur *model.Cursor, opts model.SyncOptions) int64 {
	if opts.SinceTS != nil {
		return *opts.SinceTS
	}
	if cur != nil {
		return cur.LastSyncedAt
	}
	now := e.now()
	if d, ok := RangeDuration(opts.Range); ok {
		return now.Add(-d).Unix()
	}
	return now.Add(-feed.DefaultLookback()).Unix()
}

// RangeDuration maps a range name ("1d", "7d" or "1m") to its length.
func RangeDuration(r string) (time.Duration, bool) {
	switch strings.ToLower(r) {
	case "1d":
		return 24 * time.Hour, true
	case "7d":
		return 7 * 24 * time.Hour, true
	case "1m":
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
