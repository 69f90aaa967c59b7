package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

func TestLogRepo_GymLogIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLogRepo(db)
	ctx := context.Background()

	e := model.LogEntry{
		ID: "log-1", PlayerID: 7, Timestamp: 1700000000, Kind: model.LogKindGym,
		EnergyUsed: 150, Trains: 15, GymID: 3, Stat: "strength", Delta: 1234.5,
		Raw: []byte(`{"id":"log-1"}`),
	}

	require.NoError(t, repo.UpsertGymLog(ctx, e))
	require.NoError(t, repo.UpsertGymLog(ctx, e))
	assert.Equal(t, 1, countRows(t, db, "gym_logs"))

	var energy int64
	var raw string
	require.NoError(t, db.Reader.QueryRowContext(ctx,
		`SELECT energy_used, raw_json FROM gym_logs WHERE id = 'log-1'`).Scan(&energy, &raw))
	assert.Equal(t, int64(150), energy)
	assert.JSONEq(t, `{"id":"log-1"}`, raw)
}

func TestLogRepo_ConsumableLogIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLogRepo(db)
	ctx := context.Background()

	e := model.LogEntry{ID: "log-2", PlayerID: 7, Timestamp: 1700000100, Kind: model.LogKindConsumable, Item: "xanax", Quantity: 1}

	require.NoError(t, repo.UpsertConsumableLog(ctx, e))
	require.NoError(t, repo.UpsertConsumableLog(ctx, e))
	assert.Equal(t, 1, countRows(t, db, "consumable_logs"))
	assert.Equal(t, 0, countRows(t, db, "gym_logs"))
}
