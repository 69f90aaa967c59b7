package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CounterStore = (*CounterRepo)(nil)

// CounterRepo is the single-node CounterStore kept in kv_store. Expired rows
// read as absent until Sweep removes them.
type CounterRepo struct {
	db  *DB
	now func() time.Time
}

// NewCounterRepo creates a new CounterRepo backed by the given DB.
func NewCounterRepo(db *DB) *CounterRepo {
	return &CounterRepo{db: db, now: time.Now}
}

// Get returns the live value for key.
func (r *CounterRepo) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM kv_store WHERE key = ? AND expires_at > ?`

	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, key, r.now().UnixMilli()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key until now+ttl.
func (r *CounterRepo) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	const query = `
		INSERT INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`

	expiresAt := r.now().Add(ttl).UnixMilli()
	if _, err := r.db.Writer.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("put kv %q: %w", key, err)
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed.
func (r *CounterRepo) Sweep(ctx context.Context) (int64, error) {
	const query = `DELETE FROM kv_store WHERE expires_at <= ?`

	res, err := r.db.Writer.ExecContext(ctx, query, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep kv store: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep kv store: %w", err)
	}
	return n, nil
}
