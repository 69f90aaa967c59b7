package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Cache windows for live faction reads.
const (
	membersSoftTTL      = 60 * time.Second
	membersHardTTL      = 10 * time.Minute
	contributorsSoftTTL = 5 * time.Minute
	contributorsHardTTL = time.Hour
)

// FactionMembers is a cached read of a faction's live member list.
type FactionMembers struct {
	Faction model.Faction        `json:"faction"`
	Members []model.RosterMember `json:"members"`
}

// FactionReads serves live faction data through the response cache.
type FactionReads struct {
	fetcher Fetcher
	catalog driven.UpstreamCatalog
	cache   *ResponseCache
}

// NewFactionReads creates a FactionReads.
func NewFactionReads(fetcher Fetcher, catalog driven.UpstreamCatalog, cache *ResponseCache) *FactionReads {
	return &FactionReads{fetcher: fetcher, catalog: catalog, cache: cache}
}

// Members returns the faction's member list, at most a minute stale before
// a background refresh starts.
func (r *FactionReads) Members(ctx context.Context, factionID int64, user *model.UserContext) (FactionMembers, error) {
	key := "members:" + strconv.FormatInt(factionID, 10)
	return GetOrRefresh(ctx, r.cache, key, membersSoftTTL, membersHardTTL, func(ctx context.Context) (FactionMembers, error) {
		body, err := r.fetcher.FetchJSON(ctx, model.BrokerRequest{
			URL:       r.catalog.FactionMembersURL(factionID),
			Scope:     model.ScopeFaction,
			User:      user,
			FactionID: &factionID,
		})
		if err != nil {
			return FactionMembers{}, fmt.Errorf("fetch members of faction %d: %w", factionID, err)
		}
		faction, members, err := r.catalog.DecodeRoster(body, factionID)
		if err != nil {
			return FactionMembers{}, fmt.Errorf("decode members of faction %d: %w", factionID, err)
		}
		return FactionMembers{Faction: faction, Members: members}, nil
	})
}

// Contributors returns the faction's current contributors for stat.
func (r *FactionReads) Contributors(ctx context.Context, factionID int64, stat string, user *model.UserContext) ([]model.Contributor, error) {
	key := "contributors:" + strconv.FormatInt(factionID, 10) + ":" + stat
	return GetOrRefresh(ctx, r.cache, key, contributorsSoftTTL, contributorsHardTTL, func(ctx context.Context) ([]model.Contributor, error) {
		body, err := r.fetcher.FetchJSON(ctx, model.BrokerRequest{
			URL:       r.catalog.ContributorsURL(stat),
			Scope:     model.ScopeFaction,
			User:      user,
			FactionID: &factionID,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s contributors of faction %d: %w", stat, factionID, err)
		}
		contributors, err := r.catalog.DecodeContributors(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s contributors of faction %d: %w", stat, factionID, err)
		}
		return contributors, nil
	})
}
