package torn

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

// PageLimit is the page size requested from paginated feeds.
const PageLimit = 200

// URLs builds upstream request URLs against a base such as DefaultBaseURL.
// Credentials are never part of a built URL; the broker attaches them.
type URLs struct {
	base string
}

// NewURLs returns a builder for base. An empty base means DefaultBaseURL.
func NewURLs(base string) URLs {
	if base == "" {
		base = DefaultBaseURL
	}
	return URLs{base: strings.TrimRight(base, "/")}
}

func (u URLs) build(path string, q url.Values) string {
	if len(q) == 0 {
		return u.base + path
	}
	return u.base + path + "?" + q.Encode()
}

// Attacks returns one page of the attacks feed for the scope. Global scope
// carries no id.
func (u URLs) Attacks(scope model.SyncScope, id int64, from int64, cursor string) string {
	q := url.Values{}
	switch scope {
	case model.SyncScopeFaction:
		q.Set("scope", "faction")
	case model.SyncScopePlayer:
		q.Set("scope", "user")
	default:
		q.Set("scope", "global")
	}
	if scope != model.SyncScopeGlobal {
		q.Set("id", strconv.FormatInt(id, 10))
	}
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("limit", strconv.Itoa(PageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return u.build("/v2/attacks", q)
}

// UserLogs returns one page of a player's log feed.
func (u URLs) UserLogs(playerID int64, from int64, cursor string) string {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(playerID, 10))
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("limit", strconv.Itoa(PageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return u.build("/v2/user/logs", q)
}

// FactionBasic returns the faction profile URL.
func (u URLs) FactionBasic(factionID int64) string {
	return u.build("/v2/faction/basic", url.Values{"id": {strconv.FormatInt(factionID, 10)}})
}

// FactionMembers returns the faction member list URL.
func (u URLs) FactionMembers(factionID int64) string {
	return u.build("/v2/faction/members", url.Values{"id": {strconv.FormatInt(factionID, 10)}})
}

// Contributors returns the current contributor list for a faction stat. The
// faction is implied by the credential used.
func (u URLs) Contributors(stat string) string {
	q := url.Values{}
	q.Set("stat", stat)
	q.Set("cat", "current")
	return u.build("/v2/faction/contributors", q)
}

// PersonalStats returns a player's personal stat URL filtered to stat.
func (u URLs) PersonalStats(playerID int64, stat string) string {
	return u.build("/v2/user/"+strconv.FormatInt(playerID, 10)+"/personalstats", url.Values{"stat": {stat}})
}
