package model

import "strconv"

// Attack is a single combat record. Nullable participant fields stay nil when
// the upstream omits them so upserts keep previously known values.
type Attack struct {
	ID                  int64
	Code                string
	Started             int64
	Ended               int64
	AttackerID          *int64
	AttackerName        *string
	AttackerLevel       *int64
	AttackerFactionID   *int64
	AttackerFactionName *string
	DefenderID          *int64
	DefenderName        *string
	DefenderLevel       *int64
	DefenderFactionID   *int64
	DefenderFactionName *string
	Result              string
	RespectGain         float64
	RespectLoss         float64
	Chain               int64
	IsInterrupted       bool
	IsStealthed         bool
	Modifiers           AttackModifiers
}

// AttackModifiers are the respect multipliers reported with an attack.
type AttackModifiers struct {
	FairFight    float64
	War          float64
	Retaliation  float64
	GroupAttack  float64
	Overseas     float64
	ChainBonus   float64
	WarlordBonus float64
}

// NaturalID implements Record.
func (a Attack) NaturalID() string { return strconv.FormatInt(a.ID, 10) }

// OccurredAt implements Record.
func (a Attack) OccurredAt() int64 { return a.Started }
