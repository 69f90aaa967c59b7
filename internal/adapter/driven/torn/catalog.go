package torn

import (
	"errors"
	"log/slog"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Compile-time check that Catalog implements driven.UpstreamCatalog.
var _ driven.UpstreamCatalog = (*Catalog)(nil)

// Catalog binds the URL builders and decoders of this package to the
// driven.UpstreamCatalog port.
type Catalog struct {
	urls URLs
}

// NewCatalog returns a catalog for the given base URL.
func NewCatalog(base string) *Catalog {
	return &Catalog{urls: NewURLs(base)}
}

func (c *Catalog) AttacksURL(scope model.SyncScope, id int64, from int64, cursor string) string {
	return c.urls.Attacks(scope, id, from, cursor)
}

func (c *Catalog) UserLogsURL(playerID int64, from int64, cursor string) string {
	return c.urls.UserLogs(playerID, from, cursor)
}

func (c *Catalog) FactionBasicURL(factionID int64) string { return c.urls.FactionBasic(factionID) }

func (c *Catalog) FactionMembersURL(factionID int64) string { return c.urls.FactionMembers(factionID) }

func (c *Catalog) ContributorsURL(stat string) string { return c.urls.Contributors(stat) }

func (c *Catalog) PersonalStatsURL(playerID int64, stat string) string {
	return c.urls.PersonalStats(playerID, stat)
}

// DecodeAttackPage implements driven.UpstreamCatalog.
func (c *Catalog) DecodeAttackPage(body []byte) ([]model.Attack, string, error) {
	page, err := ParsePage(body)
	if err != nil {
		return nil, "", err
	}

	raws := page.Records("attacks", "data")
	attacks := make([]model.Attack, 0, len(raws))
	for _, raw := range raws {
		a, err := DecodeAttack(raw)
		if errors.Is(err, ErrMissingID) {
			slog.Debug("skipping attack without id")
			continue
		}
		if err != nil {
			return nil, "", err
		}
		attacks = append(attacks, a)
	}
	return attacks, page.NextCursor(), nil
}

// DecodeLogPage implements driven.UpstreamCatalog.
func (c *Catalog) DecodeLogPage(body []byte, playerID int64) ([]model.LogEntry, string, error) {
	page, err := ParsePage(body)
	if err != nil {
		return nil, "", err
	}

	raws := page.Records("log", "logs", "data")
	entries := make([]model.LogEntry, 0, len(raws))
	for _, raw := range raws {
		e, err := DecodeLogEntry(raw, playerID)
		if errors.Is(err, ErrMissingID) {
			slog.Debug("skipping log entry without id", "player_id", playerID)
			continue
		}
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, e)
	}
	return entries, page.NextCursor(), nil
}

func (c *Catalog) DecodeRoster(body []byte, factionID int64) (model.Faction, []model.RosterMember, error) {
	return DecodeRoster(body, factionID)
}

func (c *Catalog) DecodeContributors(body []byte) ([]model.Contributor, error) {
	return DecodeContributors(body)
}

func (c *Catalog) DecodePersonalStat(body []byte, stat string) (int64, error) {
	return DecodePersonalStat(body, stat)
}
