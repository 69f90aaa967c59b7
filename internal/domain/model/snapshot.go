package model

// Contributor is a member's value for a faction contribution stat.
type Contributor struct {
	PlayerID int64
	Name     *string
	Value    int64
}

// ContribSnapshot is one day's value of a contribution stat for a member.
type ContribSnapshot struct {
	FactionID  int64
	PlayerID   int64
	PlayerName *string
	StatKey    string
	CapturedAt int64
	Value      int64
}

// PersonalStatSnapshot is one day's value of a personal stat for a player.
type PersonalStatSnapshot struct {
	PlayerID   int64
	FactionID  *int64
	PlayerName *string
	Stat       string
	CapturedAt int64
	Value      int64
}

// SnapshotResult summarizes a snapshot run for one faction.
type SnapshotResult struct {
	FactionID     int64
	Members       int
	Contributions int
	PersonalStats int
	Failed        int
}
