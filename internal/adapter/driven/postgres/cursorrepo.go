// Package postgres stores delta-sync cursors in PostgreSQL for deployments
// that run more than one sync worker.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CursorStore = (*CursorRepo)(nil)

// querier is the part of *pgxpool.Pool the repo uses.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_meta (
	entity         TEXT   NOT NULL,
	scope          TEXT   NOT NULL,
	k              TEXT   NOT NULL,
	last_synced_at BIGINT NOT NULL DEFAULT 0,
	last_id        TEXT,
	PRIMARY KEY (entity, scope, k)
)`

// CursorRepo is the PostgreSQL CursorStore.
type CursorRepo struct {
	db querier
}

// NewCursorRepo wraps a pool or any compatible querier.
func NewCursorRepo(db querier) *CursorRepo {
	return &CursorRepo{db: db}
}

// Connect opens a pool for dsn, verifies it and ensures the cursor table.
func Connect(ctx context.Context, dsn string) (*CursorRepo, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := NewCursorRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool, nil
}

// EnsureSchema creates cache_meta if it does not exist.
func (r *CursorRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create cache_meta: %w", err)
	}
	return nil
}

// Get returns the cursor, or nil, nil when none exists.
func (r *CursorRepo) Get(ctx context.Context, entity string, scope model.SyncScope, key string) (*model.Cursor, error) {
	const query = `SELECT last_synced_at, last_id FROM cache_meta WHERE entity = $1 AND scope = $2 AND k = $3`

	var (
		lastSynced int64
		lastID     *string
	)
	err := r.db.QueryRow(ctx, query, entity, string(scope), key).Scan(&lastSynced, &lastID)
	if errors.Is(err, pgx.ErrNoRows) {
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
		LastID:       lastID,
	}, nil
}

// Set upserts the cursor. last_synced_at only moves forward.
func (r *CursorRepo) Set(ctx context.Context, c model.Cursor) error {
	const query = `
		INSERT INTO cache_meta (entity, scope, k, last_synced_at, last_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity, scope, k) DO UPDATE SET
			last_synced_at = GREATEST(cache_meta.last_synced_at, EXCLUDED.last_synced_at),
			last_id = COALESCE(EXCLUDED.last_id, cache_meta.last_id)`

	if _, err := r.db.Exec(ctx, query, c.Entity, string(c.Scope), c.Key, c.LastSyncedAt, c.LastID); err != nil {
		return fmt.Errorf("set cursor %s/%s/%s: %w", c.Entity, c.Scope, c.Key, err)
	}
	return nil
}
