package sqlite

import (
	"context"
	"fmt"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo persists daily contribution and personal-stat snapshots.
// captured_at is the UTC day start, so a second capture on the same day
// overwrites the first.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new SnapshotRepo backed by the given DB.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// UpsertContribution writes one member's contribution value for the day.
func (r *SnapshotRepo) UpsertContribution(ctx context.Context, s model.ContribSnapshot) error {
	const query = `
		INSERT INTO faction_contrib_snapshots (faction_id, player_id, player_name, stat_key, captured_at, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(faction_id, player_id, stat_key, captured_at) DO UPDATE SET
			player_name = COALESCE(excluded.player_name, faction_contrib_snapshots.player_name),
			value = excluded.value
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		s.FactionID, s.PlayerID, nullString(s.PlayerName), s.StatKey, s.CapturedAt, s.Value)
	if err != nil {
		return fmt.Errorf("upsert %s contribution for %d/%d: %w", s.StatKey, s.FactionID, s.PlayerID, err)
	}
	return nil
}

// UpsertPersonalStat writes one player's personal stat value for the day.
func (r *SnapshotRepo) UpsertPersonalStat(ctx context.Context, s model.PersonalStatSnapshot) error {
	const query = `
		INSERT INTO user_personalstats_snapshots (player_id, faction_id, player_name, stat, captured_at, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id, stat, captured_at) DO UPDATE SET
			faction_id = COALESCE(excluded.faction_id, user_personalstats_snapshots.faction_id),
			player_name = COALESCE(excluded.player_name, user_personalstats_snapshots.player_name),
			value = excluded.value
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		s.PlayerID, nullInt64(s.FactionID), nullString(s.PlayerName), s.Stat, s.CapturedAt, s.Value)
	if err != nil {
		return fmt.Errorf("upsert %s personal stat for %d: %w", s.Stat, s.PlayerID, err)
	}
	return nil
}

// PruneBefore deletes snapshots from both tables captured before cutoff.
func (r *SnapshotRepo) PruneBefore(ctx context.Context, cutoff int64) (int64, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"faction_contrib_snapshots", "user_personalstats_snapshots"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE captured_at < ?`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return total, nil
}
