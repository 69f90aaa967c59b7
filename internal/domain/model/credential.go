package model

import "time"

// Credential is an upstream API key held by the pool. Secret is the packed,
// encrypted blob exactly as stored; it is only decrypted by the broker at the
// moment of use.
type Credential struct {
	ID               int64
	Secret           string
	Owner            OwnerClass
	PlayerID         *int64
	FactionID        *int64
	Shareable        bool
	HasFactionAccess bool
	Revoked          bool
	LastUsedAt       *time.Time
	CreatedAt        time.Time
}

// PoolFilter selects from the shareable pool. FactionAccess=false is the
// public pool; FactionAccess=true additionally requires FactionID to match.
type PoolFilter struct {
	FactionAccess bool
	FactionID     *int64
}
