package driven

import (
	"context"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

// AttackStore persists attack records. Upsert is idempotent on the attack id.
type AttackStore interface {
	UpsertAttack(ctx context.Context, attack model.Attack) error
}

// LogStore persists classified user log entries. Upserts are idempotent on
// the log id.
type LogStore interface {
	UpsertGymLog(ctx context.Context, entry model.LogEntry) error
	UpsertConsumableLog(ctx context.Context, entry model.LogEntry) error
}

// RosterStore persists factions, their members and membership history.
type RosterStore interface {
	UpsertFaction(ctx context.Context, faction model.Faction) error
	UpsertMember(ctx context.Context, member model.RosterMember) error
	ListMembers(ctx context.Context, factionID int64) ([]model.RosterMember, error)
	RemoveMember(ctx context.Context, factionID, playerID int64) error
	AppendHistory(ctx context.Context, change model.RosterChange) error
}

// SnapshotStore persists daily per-member stat snapshots.
type SnapshotStore interface {
	UpsertContribution(ctx context.Context, snap model.ContribSnapshot) error
	UpsertPersonalStat(ctx context.Context, snap model.PersonalStatSnapshot) error
	// PruneBefore deletes snapshots captured before the given unix time and
	// returns the number of rows removed.
	PruneBefore(ctx context.Context, cutoff int64) (int64, error)
}
