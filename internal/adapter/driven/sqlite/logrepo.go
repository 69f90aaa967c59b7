package sqlite

import (
	"context"
	"fmt"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LogStore = (*LogRepo)(nil)

// LogRepo persists classified user log entries. Log lines are immutable
// upstream, so a repeated id is ignored.
type LogRepo struct {
	db *DB
}

// NewLogRepo creates a new LogRepo backed by the given DB.
func NewLogRepo(db *DB) *LogRepo {
	return &LogRepo{db: db}
}

// UpsertGymLog stores a gym training entry.
func (r *LogRepo) UpsertGymLog(ctx context.Context, e model.LogEntry) error {
	const query = `
		INSERT INTO gym_logs (id, player_id, ts, energy_used, trains, gym_id, stat, delta, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		e.ID, e.PlayerID, e.Timestamp, e.EnergyUsed, e.Trains, e.GymID,
		emptyAsNull(e.Stat), e.Delta, rawJSON(e.Raw))
	if err != nil {
		return fmt.Errorf("upsert gym log %s: %w", e.ID, err)
	}
	return nil
}

// UpsertConsumableLog stores a consumable use entry.
func (r *LogRepo) UpsertConsumableLog(ctx context.Context, e model.LogEntry) error {
	const query = `
		INSERT INTO consumable_logs (id, player_id, ts, item, qty, raw_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		e.ID, e.PlayerID, e.Timestamp, emptyAsNull(e.Item), e.Quantity, rawJSON(e.Raw))
	if err != nil {
		return fmt.Errorf("upsert consumable log %s: %w", e.ID, err)
	}
	return nil
}

func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
