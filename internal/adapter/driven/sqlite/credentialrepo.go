package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

const credentialColumns = `id, key_enc, owner_type, player_id, faction_id,
	shareable_pool, has_faction_access, is_revoked, last_used_at, created_at`

// lruOrder puts never-used keys first, then the oldest use. id breaks ties so
// two calls over unchanged rows pick the same key.
const lruOrder = `ORDER BY (last_used_at IS NOT NULL), last_used_at ASC, created_at ASC, id ASC`

// sharedOrFactionOwned excludes keys a user registered as private.
const sharedOrFactionOwned = `(shareable_pool = 1 OR owner_type = 'faction')`

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// It stores and returns secrets exactly as given; encryption happens above it.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// FindUserCredential returns the least recently used key owned by the player.
func (r *CredentialRepo) FindUserCredential(ctx context.Context, playerID int64) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys
		WHERE owner_type = 'user' AND player_id = ? AND is_revoked = 0
		` + lruOrder + ` LIMIT 1`

	return r.findOne(ctx, "find user credential", query, playerID)
}

// FindFactionCredential returns the least recently used key owned by the faction.
func (r *CredentialRepo) FindFactionCredential(ctx context.Context, factionID int64) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys
		WHERE owner_type = 'faction' AND faction_id = ? AND is_revoked = 0
		` + lruOrder + ` LIMIT 1`

	return r.findOne(ctx, "find faction credential", query, factionID)
}

// FindSharedPool returns the least recently used shareable key matching the
// filter. A faction-capable lookup without a faction id matches nothing.
func (r *CredentialRepo) FindSharedPool(ctx context.Context, filter model.PoolFilter) (*model.Credential, error) {
	if !filter.FactionAccess {
		query := `SELECT ` + credentialColumns + ` FROM api_keys
			WHERE is_revoked = 0 AND shareable_pool = 1 AND has_faction_access = 0
			` + lruOrder + ` LIMIT 1`
		return r.findOne(ctx, "find public pool credential", query)
	}

	if filter.FactionID == nil {
		return nil, nil
	}

	query := `SELECT ` + credentialColumns + ` FROM api_keys
		WHERE is_revoked = 0 AND shareable_pool = 1 AND has_faction_access = 1 AND faction_id = ?
		` + lruOrder + ` LIMIT 1`
	return r.findOne(ctx, "find faction pool credential", query, *filter.FactionID)
}

// ListFactionCredentials returns faction-capable keys tied to the faction,
// most recently used first. Private user keys are never listed.
func (r *CredentialRepo) ListFactionCredentials(ctx context.Context, factionID int64, limit int) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys
		WHERE faction_id = ? AND has_faction_access = 1 AND is_revoked = 0
		  AND ` + sharedOrFactionOwned + `
		ORDER BY (last_used_at IS NULL), last_used_at DESC, id DESC
		LIMIT ?`

	creds, err := r.queryMany(ctx, query, factionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list faction credentials for %d: %w", factionID, err)
	}
	return creds, nil
}

// ListFactionIDs returns factions holding a usable faction-capable key that
// is shareable or owned by the faction.
func (r *CredentialRepo) ListFactionIDs(ctx context.Context) ([]int64, error) {
	const query = `
		SELECT DISTINCT faction_id FROM api_keys
		WHERE faction_id IS NOT NULL AND has_faction_access = 1 AND is_revoked = 0
		  AND ` + sharedOrFactionOwned + `
		ORDER BY faction_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list faction ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan faction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faction ids: %w", err)
	}
	return ids, nil
}

// Create inserts a credential. A zero CreatedAt falls back to CURRENT_TIMESTAMP.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) (int64, error) {
	const query = `
		INSERT INTO api_keys (
			key_enc, owner_type, player_id, faction_id,
			shareable_pool, has_faction_access, is_revoked, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, COALESCE(?, CURRENT_TIMESTAMP))
	`

	owner := cred.Owner
	if owner == "" {
		owner = model.OwnerUnowned
	}

	var createdAt sql.NullString
	if !cred.CreatedAt.IsZero() {
		createdAt = sql.NullString{String: formatTime(cred.CreatedAt), Valid: true}
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		cred.Secret, string(owner), nullInt64(cred.PlayerID), nullInt64(cred.FactionID),
		boolToInt(cred.Shareable), boolToInt(cred.HasFactionAccess), createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("create credential: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get credential id: %w", err)
	}
	return id, nil
}

// Revoke marks the credential revoked. Rows are never deleted.
func (r *CredentialRepo) Revoke(ctx context.Context, id int64) error {
	const query = `UPDATE api_keys SET is_revoked = 1 WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoke credential %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential %d: %w", id, err)
	}
	if n == 0 {
		return driven.ErrCredentialNotFound
	}
	return nil
}

// TouchLastUsed stamps last_used_at, which moves the key to the back of the
// LRU order.
func (r *CredentialRepo) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE api_keys SET last_used_at = ? WHERE id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), id); err != nil {
		return fmt.Errorf("touch credential %d: %w", id, err)
	}
	return nil
}

// List returns every credential ordered by id.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys ORDER BY id`

	creds, err := r.queryMany(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

func (r *CredentialRepo) findOne(ctx context.Context, op, query string, args ...any) (*model.Credential, error) {
	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cred, nil
}

func (r *CredentialRepo) queryMany(ctx context.Context, query string, args ...any) ([]model.Credential, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*model.Credential, error) {
	var (
		cred                              model.Credential
		owner                             string
		playerID, factionID               sql.NullInt64
		shareable, factionAccess, revoked int
		lastUsed                          sql.NullString
		createdAt                         string
	)

	err := s.Scan(&cred.ID, &cred.Secret, &owner, &playerID, &factionID,
		&shareable, &factionAccess, &revoked, &lastUsed, &createdAt)
	if err != nil {
		return nil, err
	}

	cred.Owner = model.OwnerClass(owner)
	cred.PlayerID = int64Ptr(playerID)
	cred.FactionID = int64Ptr(factionID)
	cred.Shareable = shareable == 1
	cred.HasFactionAccess = factionAccess == 1
	cred.Revoked = revoked == 1

	if lastUsed.Valid {
		t, err := parseTime(lastUsed.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_used_at: %w", err)
		}
		cred.LastUsedAt = &t
	}

	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &cred, nil
}
