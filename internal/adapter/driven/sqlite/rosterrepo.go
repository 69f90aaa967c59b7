package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RosterStore = (*RosterRepo)(nil)

// RosterRepo persists factions, their current members and join/leave history.
type RosterRepo struct {
	db *DB
}

// NewRosterRepo creates a new RosterRepo backed by the given DB.
func NewRosterRepo(db *DB) *RosterRepo {
	return &RosterRepo{db: db}
}

// UpsertFaction records the faction and stamps seen_at.
func (r *RosterRepo) UpsertFaction(ctx context.Context, f model.Faction) error {
	const query = `
		INSERT INTO factions (faction_id, name, tag, seen_at, updated_at)
		VALUES (?, ?, ?, unixepoch(), unixepoch())
		ON CONFLICT(faction_id) DO UPDATE SET
			name = COALESCE(excluded.name, factions.name),
			tag = COALESCE(excluded.tag, factions.tag),
			seen_at = unixepoch(),
			updated_at = unixepoch()
	`

	if _, err := r.db.Writer.ExecContext(ctx, query, f.ID, nullString(f.Name), nullString(f.Tag)); err != nil {
		return fmt.Errorf("upsert faction %d: %w", f.ID, err)
	}
	return nil
}

// UpsertMember records a member. Missing optional fields keep stored values.
func (r *RosterRepo) UpsertMember(ctx context.Context, m model.RosterMember) error {
	const query = `
		INSERT INTO roster_members (faction_id, player_id, player_name, position, joined_at, level, seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, unixepoch(), unixepoch())
		ON CONFLICT(faction_id, player_id) DO UPDATE SET
			player_name = COALESCE(excluded.player_name, roster_members.player_name),
			position = COALESCE(excluded.position, roster_members.position),
			joined_at = COALESCE(excluded.joined_at, roster_members.joined_at),
			level = COALESCE(excluded.level, roster_members.level),
			seen_at = unixepoch(),
			updated_at = unixepoch()
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		m.FactionID, m.PlayerID, emptyAsNull(m.Name), nullString(m.Position),
		nullInt64(m.JoinedAt), nullInt64(m.Level))
	if err != nil {
		return fmt.Errorf("upsert roster member %d/%d: %w", m.FactionID, m.PlayerID, err)
	}
	return nil
}

// ListMembers returns the stored roster of a faction ordered by player id.
func (r *RosterRepo) ListMembers(ctx context.Context, factionID int64) ([]model.RosterMember, error) {
	const query = `
		SELECT faction_id, player_id, player_name, position, joined_at, level
		FROM roster_members
		WHERE faction_id = ?
		ORDER BY player_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, factionID)
	if err != nil {
		return nil, fmt.Errorf("list roster for faction %d: %w", factionID, err)
	}
	defer rows.Close()

	var members []model.RosterMember
	for rows.Next() {
		var (
			member          model.RosterMember
			name, position  sql.NullString
			joinedAt, level sql.NullInt64
		)
		if err := rows.Scan(&member.FactionID, &member.PlayerID, &name, &position, &joinedAt, &level); err != nil {
			return nil, fmt.Errorf("scan roster member: %w", err)
		}
		member.Name = name.String
		member.Position = stringPtr(position)
		member.JoinedAt = int64Ptr(joinedAt)
		member.Level = int64Ptr(level)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster members: %w", err)
	}
	return members, nil
}

// RemoveMember deletes a member who is no longer in the faction.
func (r *RosterRepo) RemoveMember(ctx context.Context, factionID, playerID int64) error {
	const query = `DELETE FROM roster_members WHERE faction_id = ? AND player_id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, factionID, playerID); err != nil {
		return fmt.Errorf("remove roster member %d/%d: %w", factionID, playerID, err)
	}
	return nil
}

// AppendHistory writes one join or leave event.
func (r *RosterRepo) AppendHistory(ctx context.Context, c model.RosterChange) error {
	const query = `
		INSERT INTO roster_history (faction_id, player_id, event, at_ts, role_before, role_after)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		c.FactionID, c.PlayerID, string(c.Event), c.At, nullString(c.RoleBefore), nullString(c.RoleAfter))
	if err != nil {
		return fmt.Errorf("append roster %s for %d/%d: %w", c.Event, c.FactionID, c.PlayerID, err)
	}
	return nil
}

// ListHistory returns a faction's roster events, oldest first.
func (r *RosterRepo) ListHistory(ctx context.Context, factionID int64) ([]model.RosterChange, error) {
	const query = `
		SELECT faction_id, player_id, event, at_ts, role_before, role_after
		FROM roster_history
		WHERE faction_id = ?
		ORDER BY at_ts, id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, factionID)
	if err != nil {
		return nil, fmt.Errorf("list roster history for faction %d: %w", factionID, err)
	}
	defer rows.Close()

	var changes []model.RosterChange
	for rows.Next() {
		var (
			c                     model.RosterChange
			event                 string
			roleBefore, roleAfter sql.NullString
		)
		if err := rows.Scan(&c.FactionID, &c.PlayerID, &event, &c.At, &roleBefore, &roleAfter); err != nil {
			return nil, fmt.Errorf("scan roster history: %w", err)
		}
		c.Event = model.RosterEvent(event)
		c.RoleBefore = stringPtr(roleBefore)
		c.RoleAfter = stringPtr(roleAfter)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster history: %w", err)
	}
	return changes, nil
}
