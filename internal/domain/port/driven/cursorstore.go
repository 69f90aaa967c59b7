package driven

import (
	"context"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

// CursorStore persists delta-sync watermarks keyed by (entity, scope, key).
type CursorStore interface {
	// Get returns the cursor, or nil, nil when none exists yet.
	Get(ctx context.Context, entity string, scope model.SyncScope, key string) (*model.Cursor, error)

	// Set inserts or updates the cursor. last_synced_at never moves backwards.
	Set(ctx context.Context, cursor model.Cursor) error
}
