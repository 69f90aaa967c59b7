package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// RosterService mirrors a faction's member list and records who joined and
// who left between syncs.
type RosterService struct {
	fetcher Fetcher
	catalog driven.UpstreamCatalog
	store   driven.RosterStore
	now     func() time.Time
}

// NewRosterService creates a RosterService. A nil now means time.Now.
func NewRosterService(fetcher Fetcher, catalog driven.UpstreamCatalog, store driven.RosterStore, now func() time.Time) *RosterService {
	if now == nil {
		now = time.Now
	}
	return &RosterService{fetcher: fetcher, catalog: catalog, store: store, now: now}
}

// Sync fetches the faction profile and reconciles the stored roster with it.
// When the profile carries no member list the members endpoint is asked
// instead. An empty upstream roster is treated as a failed read and leaves
// the stored roster untouched.
func (s *RosterService) Sync(ctx context.Context, factionID int64) (model.RosterSyncResult, error) {
	result := model.RosterSyncResult{FactionID: factionID}

	faction, members, err := s.fetch(ctx, factionID, s.catalog.FactionBasicURL(factionID))
	if err != nil {
		return result, err
	}
	if len(members) == 0 {
		var fromList model.Faction
		fromList, members, err = s.fetch(ctx, factionID, s.catalog.FactionMembersURL(factionID))
		if err != nil {
			return result, err
		}
		if faction.Name == nil {
			faction.Name = fromList.Name
		}
	}
	if len(members) == 0 {
		slog.Warn("roster sync returned no members, keeping stored roster", "faction_id", factionID)
		return result, nil
	}

	if err := s.store.UpsertFaction(ctx, faction); err != nil {
		return result, fmt.Errorf("upsert faction %d: %w", factionID, err)
	}

	stored, err := s.store.ListMembers(ctx, factionID)
	if err != nil {
		return result, fmt.Errorf("list roster of faction %d: %w", factionID, err)
	}
	known := make(map[int64]model.RosterMember, len(stored))
	for _, m := range stored {
		known[m.PlayerID] = m
	}

	now := s.now().Unix()
	current := make(map[int64]bool, len(members))
	for _, m := range members {
		current[m.PlayerID] = true
		if err := s.store.UpsertMember(ctx, m); err != nil {
			return result, fmt.Errorf("upsert member %d of faction %d: %w", m.PlayerID, factionID, err)
		}
		result.Upserted++

		if _, ok := known[m.PlayerID]; ok || len(stored) == 0 {
			continue
		}
		err := s.store.AppendHistory(ctx, model.RosterChange{
			FactionID: factionID,
			PlayerID:  m.PlayerID,
			Event:     model.RosterEventJoin,
			At:        now,
			RoleAfter: m.Position,
		})
		if err != nil {
			return result, fmt.Errorf("record join of %d: %w", m.PlayerID, err)
		}
		result.Joined++
	}

	for _, m := range stored {
		if current[m.PlayerID] {
			continue
		}
		if err := s.store.RemoveMember(ctx, factionID, m.PlayerID); err != nil {
			return result, fmt.Errorf("remove member %d of faction %d: %w", m.PlayerID, factionID, err)
		}
		err := s.store.AppendHistory(ctx, model.RosterChange{
			FactionID:  factionID,
			PlayerID:   m.PlayerID,
			Event:      model.RosterEventLeave,
			At:         now,
			RoleBefore: m.Position,
		})
		if err != nil {
			return result, fmt.Errorf("record leave of %d: %w", m.PlayerID, err)
		}
		result.Removed++
	}

	slog.Info("roster synced",
		"faction_id", factionID, "members", result.Upserted,
		"joined", result.Joined, "removed", result.Removed)
	return result, nil
}

func (s *RosterService) fetch(ctx context.Context, factionID int64, url string) (model.Faction, []model.RosterMember, error) {
	body, err := s.fetcher.FetchJSON(ctx, model.BrokerRequest{URL: url, Scope: model.ScopeFaction, FactionID: &factionID})
	if err != nil {
		return model.Faction{}, nil, fmt.Errorf("fetch roster of faction %d: %w", factionID, err)
	}
	faction, members, err := s.catalog.DecodeRoster(body, factionID)
	if err != nil {
		return model.Faction{}, nil, fmt.Errorf("decode roster of faction %d: %w", factionID, err)
	}
	return faction, members, nil
}
