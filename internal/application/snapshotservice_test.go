package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftdash/tornpanel/internal/adapter/driven/torn"
	"github.com/sftdash/tornpanel/internal/application"
	"github.com/sftdash/tornpanel/internal/domain/model"
)

// snapshotNow is 08:00 UTC; its day starts at 00:00.
var snapshotNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type snapshotFixture struct {
	svc       *application.SnapshotService
	fetcher   *mockFetcher
	roster    *memRosterStore
	snapshots *memSnapshotStore
	kv        *memKV
	clock     *fakeClock
}

var playerPath = regexp.MustCompile(`/v2/user/(\d+)/personalstats`)

// snapshotUpstream serves three members, contributor lists for both stats and
// a Xanax count of player id * 10. Player 3's lookup fails.
func snapshotUpstream(req model.BrokerRequest) (json.RawMessage, error) {
	switch {
	case strings.Contains(req.URL, "/v2/faction/basic"):
		return json.RawMessage(`{"name":"Alpha","members":{"1":{"name":"Ann"},"2":{"name":"Bob"},"3":{"name":"Cy"}}}`), nil
	case strings.Contains(req.URL, "stat=gymenergy"):
		return json.RawMessage(`{"contributors":[{"id":1,"username":"Ann","value":500},{"id":2,"username":"Bob","value":250}]}`), nil
	case strings.Contains(req.URL, "stat=drugoverdoses"):
		return json.RawMessage(`{"contributors":{"1":2}}`), nil
	case strings.Contains(req.URL, "/personalstats"):
		m := playerPath.FindStringSubmatch(req.URL)
		if m == nil || m[1] == "3" {
			return nil, errors.New("upstream down")
		}
		return json.RawMessage(`{"personalstats":{"xantaken":` + m[1] + `0}}`), nil
	}
	return nil, errors.New("unexpected url " + req.URL)
}

func newSnapshotFixture() *snapshotFixture {
	clock := newFakeClock(snapshotNow)
	fetcher := &mockFetcher{fetch: snapshotUpstream}
	catalog := torn.NewCatalog("https://api.test")
	roster := newMemRosterStore()
	snapshots := &memSnapshotStore{}
	kv := newMemKV()
	rosterSvc := application.NewRosterService(fetcher, catalog, roster, clock.Now)
	svc := application.NewSnapshotService(fetcher, catalog, rosterSvc, roster, snapshots, kv,
		application.SnapshotConfig{Workers: 2, ChunkSize: 2, ChunkDelay: time.Millisecond}, clock.Now)
	return &snapshotFixture{svc: svc, fetcher: fetcher, roster: roster, snapshots: snapshots, kv: kv, clock: clock}
}

func TestSnapshot_RefreshTodayCapturesStats(t *testing.T) {
	f := newSnapshotFixture()

	res, err := f.svc.RefreshToday(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, model.SnapshotResult{FactionID: 100, Members: 3, Contributions: 3, PersonalStats: 2, Failed: 1}, res)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC).Unix()
	require.Len(t, f.snapshots.contribs, 3)
	for _, c := range f.snapshots.contribs {
		assert.Equal(t, day, c.CapturedAt)
		assert.Equal(t, int64(100), c.FactionID)
	}
	assert.Equal(t, "gymenergy", f.snapshots.contribs[0].StatKey)
	assert.Equal(t, int64(500), f.snapshots.contribs[0].Value)
	assert.Equal(t, "drugoverdoses", f.snapshots.contribs[2].StatKey)

	values := make(map[int64]int64)
	for _, p := range f.snapshots.personal {
		assert.Equal(t, "xantaken", p.Stat)
		assert.Equal(t, day, p.CapturedAt)
		values[p.PlayerID] = p.Value
	}
	assert.Equal(t, map[int64]int64{1: 10, 2: 20}, values)

	marker, ok := f.kv.get("snap:lastpull:100")
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(snapshotNow.UnixMilli(), 10), marker)
	assert.Equal(t, 24*time.Hour, f.kv.ttls["snap:lastpull:100"])

	cutoff := time.Date(2026, 1, 24, 0, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, []int64{cutoff}, f.snapshots.cutoffs)
}

func TestSnapshot_RefreshTodayRefusesWhenFresh(t *testing.T) {
	f := newSnapshotFixture()
	ctx := context.Background()

	_, err := f.svc.RefreshToday(ctx, 100)
	require.NoError(t, err)
	calls := len(f.fetcher.requests())

	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.RefreshToday(ctx, 100)
	assert.ErrorIs(t, err, application.ErrSnapshotFresh)
	assert.Len(t, f.fetcher.requests(), calls)

	f.clock.Advance(6 * time.Minute)
	_, err = f.svc.RefreshToday(ctx, 100)
	assert.NoError(t, err)
}

func TestSnapshot_PersonalStatsBatch(t *testing.T) {
	f := newSnapshotFixture()

	got, err := f.svc.PersonalStatsBatch(context.Background(), &model.UserContext{PlayerID: 1}, []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, map[int64]int64{1: 10, 2: 20}, got)
}

func TestSnapshot_MemberPersonalStatsSyncsEmptyRoster(t *testing.T) {
	f := newSnapshotFixture()
	user := &model.UserContext{PlayerID: 1, FactionID: 100}

	got, err := f.svc.MemberPersonalStats(context.Background(), 100, user)
	require.NoError(t, err)

	assert.Equal(t, map[int64]int64{1: 10, 2: 20}, got)
	members, err := f.roster.ListMembers(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	var personal int
	for _, req := range f.fetcher.requests() {
		if strings.Contains(req.URL, "/personalstats") {
			personal++
			assert.Same(t, user, req.User)
		}
	}
	assert.Equal(t, 3, personal)
}

func TestSnapshot_MemberPersonalStatsUsesStoredRoster(t *testing.T) {
	f := newSnapshotFixture()
	ctx := context.Background()
	require.NoError(t, f.roster.UpsertMember(ctx, model.RosterMember{FactionID: 100, PlayerID: 2, Name: "Bob"}))

	got, err := f.svc.MemberPersonalStats(ctx, 100, nil)
	require.NoError(t, err)

	assert.Equal(t, map[int64]int64{2: 20}, got)
	for _, req := range f.fetcher.requests() {
		assert.NotContains(t, req.URL, "/v2/faction/basic", "stored roster is not refreshed")
	}
}
