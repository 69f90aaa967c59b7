package sqlite

import (
	"context"
	"fmt"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AttackStore = (*AttackRepo)(nil)

// AttackRepo persists attack records.
type AttackRepo struct {
	db *DB
}

// NewAttackRepo creates a new AttackRepo backed by the given DB.
func NewAttackRepo(db *DB) *AttackRepo {
	return &AttackRepo{db: db}
}

// UpsertAttack inserts an attack or refreshes it in place. Participant fields
// the upstream omitted keep their stored values.
func (r *AttackRepo) UpsertAttack(ctx context.Context, a model.Attack) error {
	const query = `
		INSERT INTO attacks (
			id, code, started, ended,
			attacker_id, attacker_name, attacker_level, attacker_faction_id, attacker_faction_name,
			defender_id, defender_name, defender_level, defender_faction_id, defender_faction_name,
			result, respect_gain, respect_loss, chain, is_interrupted, is_stealthed,
			fair_fight, war, retaliation, group_attack, overseas, chain_bonus, warlord_bonus
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = COALESCE(excluded.code, attacks.code),
			started = excluded.started,
			ended = COALESCE(excluded.ended, attacks.ended),
			attacker_id = COALESCE(excluded.attacker_id, attacks.attacker_id),
			attacker_name = COALESCE(excluded.attacker_name, attacks.attacker_name),
			attacker_level = COALESCE(excluded.attacker_level, attacks.attacker_level),
			attacker_faction_id = COALESCE(excluded.attacker_faction_id, attacks.attacker_faction_id),
			attacker_faction_name = COALESCE(excluded.attacker_faction_name, attacks.attacker_faction_name),
			defender_id = COALESCE(excluded.defender_id, attacks.defender_id),
			defender_name = COALESCE(excluded.defender_name, attacks.defender_name),
			defender_level = COALESCE(excluded.defender_level, attacks.defender_level),
			defender_faction_id = COALESCE(excluded.defender_faction_id, attacks.defender_faction_id),
			defender_faction_name = COALESCE(excluded.defender_faction_name, attacks.defender_faction_name),
			result = COALESCE(excluded.result, attacks.result),
			respect_gain = excluded.respect_gain,
			respect_loss = excluded.respect_loss,
			chain = excluded.chain,
			is_interrupted = excluded.is_interrupted,
			is_stealthed = excluded.is_stealthed,
			fair_fight = excluded.fair_fight,
			war = excluded.war,
			retaliation = excluded.retaliation,
			group_attack = excluded.group_attack,
			overseas = excluded.overseas,
			chain_bonus = excluded.chain_bonus,
			warlord_bonus = excluded.warlord_bonus
	`

	var ended any
	if a.Ended != 0 {
		ended = a.Ended
	}

	m := a.Modifiers
	_, err := r.db.Writer.ExecContext(ctx, query,
		a.ID, emptyAsNull(a.Code), a.Started, ended,
		nullInt64(a.AttackerID), nullString(a.AttackerName), nullInt64(a.AttackerLevel),
		nullInt64(a.AttackerFactionID), nullString(a.AttackerFactionName),
		nullInt64(a.DefenderID), nullString(a.DefenderName), nullInt64(a.DefenderLevel),
		nullInt64(a.DefenderFactionID), nullString(a.DefenderFactionName),
		emptyAsNull(a.Result), a.RespectGain, a.RespectLoss, a.Chain,
		boolToInt(a.IsInterrupted), boolToInt(a.IsStealthed),
		m.FairFight, m.War, m.Retaliation, m.GroupAttack, m.Overseas, m.ChainBonus, m.WarlordBonus,
	)
	if err != nil {
		return fmt.Errorf("upsert attack %d: %w", a.ID, err)
	}
	return nil
}

func emptyAsNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
