package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CursorStore = (*CursorRepo)(nil)

// CursorRepo stores delta-sync watermarks in cache_meta.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new CursorRepo backed by the given DB.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get returns the cursor for (entity, scope, key), or nil, nil if none exists.
func (r *CursorRepo) Get(ctx context.Context, entity string, scope model.SyncScope, key string) (*model.Cursor, error) {
	const query = `SELECT last_synced_at, last_id FROM cache_meta WHERE entity = ? AND scope = ? AND k = ?`

	var (
		lastSynced int64
		lastID     sql.NullString
	)
	err := r.db.Reader.QueryRowContext(ctx, query, entity, string(scope), key).Scan(&lastSynced, &lastID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor %s/%s/%s: %w", entity, scope, key, err)
	}

	return &model.Cursor{
		Entity:       entity,
		Scope:        scope,
		Key:          key,
		LastSyncedAt: lastSynced,
		LastID:       stringPtr(lastID),
	}, nil
}

// Set upserts the cursor. An older last_synced_at never replaces a newer one,
// and a nil LastID keeps the stored value.
func (r *CursorRepo) Set(ctx context.Context, c model.Cursor) error {
	const query = `
		INSERT INTO cache_meta (entity, scope, k, last_synced_at, last_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity, scope, k) DO UPDATE SET
			last_synced_at = MAX(cache_meta.last_synced_at, excluded.last_synced_at),
			last_id = COALESCE(excluded.last_id, cache_meta.last_id)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		c.Entity, string(c.Scope), c.Key, c.LastSyncedAt, nullString(c.LastID))
	if err != nil {
		return fmt.Errorf("set cursor %s/%s/%s: %w", c.Entity, c.Scope, c.Key, err)
	}
	return nil
}
