package model

// Faction is the roster owner as last seen upstream.
type Faction struct {
	ID   int64
	Name *string
	Tag  *string
}

// RosterMember is one faction member.
type RosterMember struct {
	FactionID int64
	PlayerID  int64
	Name      string
	Position  *string
	JoinedAt  *int64
	Level     *int64
}

// RosterEvent is the kind of membership change written to roster history.
type RosterEvent string

const (
	RosterEventJoin  RosterEvent = "join"
	RosterEventLeave RosterEvent = "leave"
)

// RosterChange is one roster history row.
type RosterChange struct {
	FactionID  int64
	PlayerID   int64
	Event      RosterEvent
	At         int64
	RoleBefore *string
	RoleAfter  *string
}

// RosterSyncResult summarizes a roster sync.
type RosterSyncResult struct {
	FactionID int64
	Upserted  int
	Joined    int
	Removed   int
}
