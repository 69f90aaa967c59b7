package driven

import "github.com/sftdash/tornpanel/internal/domain/model"

// UpstreamCatalog knows the upstream API surface: it builds request URLs and
// normalizes response bodies. It performs no I/O; requests go through the
// broker so that a credential can be attached.
type UpstreamCatalog interface {
	AttacksURL(scope model.SyncScope, id int64, from int64, cursor string) string
	UserLogsURL(playerID int64, from int64, cursor string) string
	FactionBasicURL(factionID int64) string
	FactionMembersURL(factionID int64) string
	ContributorsURL(stat string) string
	PersonalStatsURL(playerID int64, stat string) string

	// DecodeAttackPage returns the attacks on a page and the continuation
	// token, empty when the feed is exhausted. Records without an id are
	// dropped.
	DecodeAttackPage(body []byte) ([]model.Attack, string, error)

	// DecodeLogPage is DecodeAttackPage for a player's log feed.
	DecodeLogPage(body []byte, playerID int64) ([]model.LogEntry, string, error)

	DecodeRoster(body []byte, factionID int64) (model.Faction, []model.RosterMember, error)
	DecodeContributors(body []byte) ([]model.Contributor, error)
	DecodePersonalStat(body []byte, stat string) (int64, error)
}
