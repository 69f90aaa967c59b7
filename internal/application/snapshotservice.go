package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

const (
	// DefaultSnapshotRetention is how long daily snapshots are kept.
	DefaultSnapshotRetention = 45 * 24 * time.Hour

	// snapshotFreshness is the minimum gap between manual refreshes.
	snapshotFreshness = 15 * time.Minute

	lastPullTTL = 24 * time.Hour
	daySeconds  = 86400
)

// Stats captured by the daily snapshot.
var (
	contributionStats = []string{"gymenergy", "drugoverdoses"}
	personalStat      = "xantaken"
)

// SnapshotConfig tunes the snapshot service.
type SnapshotConfig struct {
	Workers    int
	Retention  time.Duration
	ChunkSize  int
	ChunkDelay time.Duration
}

// SnapshotService captures one row per member and stat per UTC day.
type SnapshotService struct {
	fetcher   Fetcher
	catalog   driven.UpstreamCatalog
	roster    *RosterService
	members   driven.RosterStore
	snapshots driven.SnapshotStore
	kv        driven.CounterStore
	cfg       SnapshotConfig
	now       func() time.Time
}

// NewSnapshotService creates a SnapshotService. A nil now means time.Now.
func NewSnapshotService(
	fetcher Fetcher,
	catalog driven.UpstreamCatalog,
	roster *RosterService,
	members driven.RosterStore,
	snapshots driven.SnapshotStore,
	kv driven.CounterStore,
	cfg SnapshotConfig,
	now func() time.Time,
) *SnapshotService {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultSnapshotRetention
	}
	if now == nil {
		now = time.Now
	}
	return &SnapshotService{
		fetcher:   fetcher,
		catalog:   catalog,
		roster:    roster,
		members:   members,
		snapshots: snapshots,
		kv:        kv,
		cfg:       cfg,
		now:       now,
	}
}

// dayStart truncates a unix time to the start of its UTC day.
func dayStart(ts int64) int64 {
	return ts - ts%daySeconds
}

func lastPullKey(factionID int64) string {
	return "snap:lastpull:" + strconv.FormatInt(factionID, 10)
}

// Run stores today's contribution and personal stat values for every
// member of the stored roster. A failed contributor stat or member lookup
// is counted in Failed and does not abort the run.
func (s *SnapshotService) Run(ctx context.Context, factionID int64) (model.SnapshotResult, error) {
	result := model.SnapshotResult{FactionID: factionID}

	members, err := s.members.ListMembers(ctx, factionID)
	if err != nil {
		return result, fmt.Errorf("list members of faction %d: %w", factionID, err)
	}
	result.Members = len(members)
	today := dayStart(s.now().Unix())

	for _, stat := range contributionStats {
		n, err := s.captureContributors(ctx, factionID, stat, today)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed++
			slog.Warn("contributor snapshot failed", "faction_id", factionID, "stat", stat, "error", err)
			continue
		}
		result.Contributions += n
	}

	var captured atomic.Int64
	failed, err := RunPool(ctx, len(members), s.cfg.Workers, func(ctx context.Context, i int) error {
		m := members[i]
		value, err := s.personalStat(ctx, m.PlayerID, factionID)
		if err != nil {
			return err
		}
		name := &m.Name
		if m.Name == "" {
			name = nil
		}
		err = s.snapshots.UpsertPersonalStat(ctx, model.PersonalStatSnapshot{
			PlayerID:   m.PlayerID,
			FactionID:  &factionID,
			PlayerName: name,
			Stat:       personalStat,
			CapturedAt: today,
			Value:      value,
		})
		if err != nil {
			return fmt.Errorf("store %s of %d: %w", personalStat, m.PlayerID, err)
		}
		captured.Add(1)
		return nil
	})
	result.Failed += failed
	result.PersonalStats = int(captured.Load())
	if err != nil {
		return result, err
	}

	if err := s.kv.Put(ctx, lastPullKey(factionID), strconv.FormatInt(s.now().UnixMilli(), 10), lastPullTTL); err != nil {
		slog.Warn("failed to stamp snapshot pull", "faction_id", factionID, "error", err)
	}

	slog.Info("snapshot captured",
		"faction_id", factionID, "members", result.Members,
		"contributions", result.Contributions, "personal_stats", result.PersonalStats,
		"failed", result.Failed)
	return result, nil
}

// RefreshToday refreshes the roster, runs a snapshot on demand and prunes
// old ones. It returns
// ErrSnapshotFresh when the faction was pulled within the last 15 minutes.
func (s *SnapshotService) RefreshToday(ctx context.Context, factionID int64) (model.SnapshotResult, error) {
	raw, ok, err := s.kv.Get(ctx, lastPullKey(factionID))
	if err != nil {
		slog.Warn("failed to read snapshot pull marker", "faction_id", factionID, "error", err)
	}
	if ok {
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil && s.now().Sub(time.UnixMilli(ms)) < snapshotFreshness {
			return model.SnapshotResult{FactionID: factionID}, ErrSnapshotFresh
		}
	}

	if _, err := s.roster.Sync(ctx, factionID); err != nil {
		slog.Warn("roster refresh before snapshot failed", "faction_id", factionID, "error", err)
	}

	result, err := s.Run(ctx, factionID)
	if err != nil {
		return result, err
	}
	if _, err := s.Prune(ctx); err != nil {
		slog.Warn("snapshot prune failed", "error", err)
	}
	return result, nil
}

// Prune deletes snapshots captured before the start of the day that lies
// one retention window ago.
func (s *SnapshotService) Prune(ctx context.Context) (int64, error) {
	cutoff := dayStart(s.now().Add(-s.cfg.Retention).Unix())
	n, err := s.snapshots.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	if n > 0 {
		slog.Info("pruned snapshots", "rows", n, "cutoff", cutoff)
	}
	return n, nil
}

// PersonalStatsBatch reads the Xanax count of each player in paced chunks.
// Players whose lookup fails are absent from the result.
func (s *SnapshotService) PersonalStatsBatch(ctx context.Context, user *model.UserContext, playerIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(playerIDs))
	var mu sync.Mutex

	_, err := RunChunked(ctx, playerIDs, s.cfg.ChunkSize, s.cfg.ChunkDelay, func(ctx context.Context, pid int64) error {
		body, err := s.fetcher.FetchJSON(ctx, model.BrokerRequest{
			URL:   s.catalog.PersonalStatsURL(pid, personalStat),
			Scope: model.ScopeBasic,
			User:  user,
		})
		if err != nil {
			return fmt.Errorf("fetch %s of %d: %w", personalStat, pid, err)
		}
		v, err := s.catalog.DecodePersonalStat(body, personalStat)
		if err != nil {
			return fmt.Errorf("decode %s of %d: %w", personalStat, pid, err)
		}
		mu.Lock()
		out[pid] = v
		mu.Unlock()
		return nil
	})
	return out, err
}

// MemberPersonalStats reads the live Xanax count of every stored member of
// the faction on behalf of the user. An empty roster is synced first.
func (s *SnapshotService) MemberPersonalStats(ctx context.Context, factionID int64, user *model.UserContext) (map[int64]int64, error) {
	members, err := s.members.ListMembers(ctx, factionID)
	if err != nil {
		return nil, fmt.Errorf("list members of faction %d: %w", factionID, err)
	}
	if len(members) == 0 {
		if _, err := s.roster.Sync(ctx, factionID); err != nil {
			return nil, fmt.Errorf("sync roster of faction %d: %w", factionID, err)
		}
		if members, err = s.members.ListMembers(ctx, factionID); err != nil {
			return nil, fmt.Errorf("list members of faction %d: %w", factionID, err)
		}
	}

	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.PlayerID
	}
	slices.Sort(ids)

	out, err := s.PersonalStatsBatch(ctx, user, ids)
	if err != nil {
		return out, err
	}
	slog.Debug("member personal stats read",
		"faction_id", factionID, "members", len(ids), "values", len(out))
	return out, nil
}

func (s *SnapshotService) captureContributors(ctx context.Context, factionID int64, stat string, day int64) (int, error) {
	body, err := s.fetcher.FetchJSON(ctx, model.BrokerRequest{
		URL:       s.catalog.ContributorsURL(stat),
		Scope:     model.ScopeFaction,
		FactionID: &factionID,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch %s contributors: %w", stat, err)
	}
	contributors, err := s.catalog.DecodeContributors(body)
	if err != nil {
		return 0, fmt.Errorf("decode %s contributors: %w", stat, err)
	}

	for _, c := range contributors {
		err := s.snapshots.UpsertContribution(ctx, model.ContribSnapshot{
			FactionID:  factionID,
			PlayerID:   c.PlayerID,
			PlayerName: c.Name,
			StatKey:    stat,
			CapturedAt: day,
			Value:      c.Value,
		})
		if err != nil {
			return 0, fmt.Errorf("store %s of %d: %w", stat, c.PlayerID, err)
		}
	}
	return len(contributors), nil
}

func (s *SnapshotService) personalStat(ctx context.Context, playerID, factionID int64) (int64, error) {
	body, err := s.fetcher.FetchJSON(ctx, model.BrokerRequest{
		URL:   s.catalog.PersonalStatsURL(playerID, personalStat),
		Scope: model.ScopeBasic,
		User:  &model.UserContext{PlayerID: playerID, FactionID: factionID},
	})
	if err != nil {
		return 0, fmt.Errorf("fetch %s of %d: %w", personalStat, playerID, err)
	}
	v, err := s.catalog.DecodePersonalStat(body, personalStat)
	if err != nil {
		return 0, fmt.Errorf("decode %s of %d: %w", personalStat, playerID, err)
	}
	return v, nil
}
