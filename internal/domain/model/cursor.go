package model

// Cursor is the persisted watermark of an incremental pull, keyed by
// (Entity, Scope, Key). LastSyncedAt is unix seconds and never decreases.
type Cursor struct {
	Entity       string
	Scope        SyncScope
	Key          string
	LastSyncedAt int64
	LastID       *string
}

// SyncOptions tunes a single delta-sync run.
type SyncOptions struct {
	// Range is one of "1d", "7d" or "1m"; used only when no cursor exists.
	Range string
	// SinceTS overrides both the stored cursor and Range when non-nil.
	SinceTS *int64
	// ResumeFromLastID seeds the first page token with the cursor's LastID.
	ResumeFromLastID bool
}

// SyncResult summarizes a completed delta-sync run.
type SyncResult struct {
	Entity       string
	Imported     int
	Pages        int
	LastSyncedAt int64
	LastID       *string
	// Truncated is set when the iteration guard stopped pagination early.
	Truncated bool
}

// Record is a normalized upstream row flowing through a delta sync.
type Record interface {
	NaturalID() string
	OccurredAt() int64
}
