package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftdash/tornpanel/internal/adapter/driven/torn"
	"github.com/sftdash/tornpanel/internal/application"
	"github.com/sftdash/tornpanel/internal/domain/model"
)

var syncNow = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

// pagedFetcher serves pages keyed by the request's cursor parameter.
func pagedFetcher(t *testing.T, pages map[string]string) *mockFetcher {
	return &mockFetcher{fetch: func(req model.BrokerRequest) (json.RawMessage, error) {
		u, err := url.Parse(req.URL)
		require.NoError(t, err)
		body, ok := pages[u.Query().Get("cursor")]
		if !ok {
			t.Fatalf("unexpected page request %s", req.URL)
		}
		return json.RawMessage(body), nil
	}}
}

func cursorParams(t *testing.T, reqs []model.BrokerRequest) []string {
	t.Helper()
	var out []string
	for _, r := range reqs {
		u, err := url.Parse(r.URL)
		require.NoError(t, err)
		out = append(out, u.Query().Get("cursor"))
	}
	return out
}

func newAttacksSync(t *testing.T, fetcher *mockFetcher) (*application.Engine, *application.AttacksFeed, *memCursorStore, *memAttackStore) {
	t.Helper()
	cursors := newMemCursorStore()
	attacks := newMemAttackStore()
	feed := application.NewAttacksFeed(torn.NewCatalog("https://api.test"), attacks)
	engine := application.NewEngine(fetcher, cursors, nil, func() time.Time { return syncNow })
	return engine, feed, cursors, attacks
}

var twoPages = map[string]string{
	"":    `{"attacks":[{"id":1,"started":1000},{"id":2,"started":1500}],"next_cursor":"abc"}`,
	"abc": `{"attacks":[{"id":3,"started":1200}],"_metadata":{"links":{"next":null}}}`,
}

func TestEngine_FollowsCursorUntilExhausted(t *testing.T) {
	fetcher := pagedFetcher(t, twoPages)
	engine, feed, cursors, attacks := newAttacksSync(t, fetcher)

	res, err := engine.Sync(context.Background(), feed, model.SyncScopeFaction, "100", model.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "abc"}, cursorParams(t, fetcher.requests()))
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, int64(1500), res.LastSyncedAt)
	assert.Equal(t, "2", *res.LastID, "id of the newest record")
	assert.False(t, res.Truncated)
	assert.Len(t, attacks.attacks, 3)

	cur, err := cursors.Get(context.Background(), "attacks", model.SyncScopeFaction, "100")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, int64(1500), cur.LastSyncedAt)
	assert.Equal(t, 1, cursors.sets)
}

func TestEngine_FollowsMetadataLink(t *testing.T) {
	fetcher := pagedFetcher(t, map[string]string{
		"":      `{"attacks":[{"id":1,"started":1000}],"_metadata":{"links":{"next":"https://api.test/v2/attacks?cursor=next1"}}}`,
		"next1": `{"attacks":[]}`,
	})
	engine, feed, _, _ := newAttacksSync(t, fetcher)

	res, err := engine.Sync(context.Background(), feed, model.SyncScopeFaction, "100", model.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "next1"}, cursorParams(t, fetcher.requests()))
	assert.Equal(t, 1, res.Imported)
}

func TestEngine_FactionPagesUseFactionScope(t *testing.T) {
	fetcher := pagedFetcher(t, twoPages)
	engine, feed, _, _ := newAttacksSync(t, fetcher)

	_, err := engine.Sync(context.Background(), feed, model.SyncScopeFaction, "100", model.SyncOptions{})
	require.NoError(t, err)

	req := fetcher.requests()[0]
	assert.Equal(t, model.ScopeFaction, req.Scope)
	assert.Equal(t, int64(100), *req.FactionID)
	u, _ := url.Parse(req.URL)
	assert.Equal(t, "faction", u.Query().Get("scope"))
	assert.Equal(t, "100", u.Query().Get("id"))
}

// newestFirstFetcher serves attacks newest first, keeping only those at or
// after the request's inclusive from parameter.
func newestFirstFetcher(t *testing.T, attacks map[int64]int64) *mockFetcher {
	return &mockFetcher{fetch: func(req model.BrokerRequest) (json.RawMessage, error) {
		u, err := url.Parse(req.URL)
		require.NoError(t, err)
		from, err := strconv.ParseInt(u.Query().Get("from"), 10, 64)
		require.NoError(t, err)

		type attack struct {
			ID      int64 `json:"id"`
			Started int64 `json:"started"`
		}
		var page []attack
		for id, started := range attacks {
			if started >= from {
				page = append(page, attack{ID: id, Started: started})
			}
		}
		sort.Slice(page, func(i, j int) bool { return page[i].Started > page[j].Started })
		return json.Marshal(map[string]any{"attacks": page})
	}}
}

func TestEngine_IsIdempotent(t *testing.T) {
	fetcher := newestFirstFetcher(t, map[int64]int64{1: 1000, 2: 1500, 3: 1200})
	engine, feed, cursors, attacks := newAttacksSync(t, fetcher)
	ctx := context.Background()
	opts := model.SyncOptions{SinceTS: ptr(int64(500))}

	_, err := engine.Sync(ctx, feed, model.SyncScopeFaction, "100", opts)
	require.NoError(t, err)
	firstCursor, _ := cursors.Get(ctx, "attacks", model.SyncScopeFaction, "100")
	require.NotNil(t, firstCursor)
	assert.Equal(t, int64(1500), firstCursor.LastSyncedAt)
	assert.Equal(t, "2", *firstCursor.LastID)
	firstAttacks := len(attacks.attacks)

	_, err = engine.Sync(ctx, feed, model.SyncScopeFaction, "100", model.SyncOptions{})
	require.NoError(t, err)
	secondCursor, _ := cursors.Get(ctx, "attacks", model.SyncScopeFaction, "100")

	assert.Equal(t, firstCursor, secondCursor)
	assert.Equal(t, firstAttacks, len(attacks.attacks))

	u, err := url.Parse(fetcher.requests()[1].URL)
	require.NoError(t, err)
	assert.Equal(t, "1500", u.Query().Get("from"), "second run starts at the stored watermark")
}

func TestEngine_SinceResolution(t *testing.T) {
	empty := map[string]string{"": `{"attacks":[]}`}
	day := int64(24 * 3600)

	tests := []struct {
		name   string
		cursor *model.Cursor
		opts   model.SyncOptions
		want   int64
	}{
		{"default lookback", nil, model.SyncOptions{}, syncNow.Unix() - 30*day},
		{"range", nil, model.SyncOptions{Range: "7d"}, syncNow.Unix() - 7*day},
		{"one month range", nil, model.SyncOptions{Range: "1m"}, syncNow.Unix() - 30*day},
		{"cursor beats range", &model.Cursor{LastSyncedAt: 5000}, model.SyncOptions{Range: "1d"}, 5000},
		{"explicit since beats cursor", &model.Cursor{LastSyncedAt: 5000}, model.SyncOptions{SinceTS: ptr(int64(42))}, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := pagedFetcher(t, empty)
			engine, feed, cursors, _ := newAttacksSync(t, fetcher)
			if tt.cursor != nil {
				c := *tt.cursor
				c.Entity, c.Scope, c.Key = "attacks", model.SyncScopeFaction, "100"
				require.NoError(t, cursors.Set(context.Background(), c))
			}

			_, err := engine.Sync(context.Background(), feed, model.SyncScopeFaction, "100", tt.opts)
			require.NoError(t, err)

			u, _ := url.Parse(fetcher.requests()[0].URL)
			assert.Equal(t, itoa(tt.want), u.Query().Get("from"))
		})
	}
}

func TestEngine_CursorNeverMovesBackwards(t *testing.T) {
	fetcher := pagedFetcher(t, map[string]string{"": `{"attacks":[{"id":9,"started":100}]}`})
	engine, feed, cursors, _ := newAttacksSync(t, fetcher)
	ctx := context.Background()
	require.NoError(t, cursors.Set(ctx, model.Cursor{Entity: "attacks", Scope: model.SyncScopeFaction, Key: "100", LastSyncedAt: 5000}))

	res, err := engine.Sync(ctx, feed, model.SyncScopeFaction, "100", model.SyncOptions{SinceTS: ptr(int64(50))})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), res.LastSyncedAt)
}

func TestEngine_ResumeFromLastID(t *testing.T) {
	fetcher := pagedFetcher(t, map[string]string{"tok": `{"attacks":[]}`})
	engine, feed, cursors, _ := newAttacksSync(t, fetcher)
	ctx := context.Background()
	require.NoError(t, cursors.Set(ctx, model.Cursor{Entity: "attacks", Scope: model.SyncScopeFaction, Key: "100", LastSyncedAt: 10, LastID: ptr("tok")}))

	_, err := engine.Sync(ctx, feed, model.SyncScopeFaction, "100", model.SyncOptions{ResumeFromLastID: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"tok"}, cursorParams(t, fetcher.requests()))
}

func TestEngine_FetchErrorLeavesCursor(t *testing.T) {
	boom := errors.New("upstream down")
	calls := 0
	fetcher := &mockFetcher{fetch: func(model.BrokerRequest) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return json.RawMessage(`{"attacks":[{"id":1,"started":1000}],"next_cursor":"abc"}`), nil
		}
		return nil, boom
	}}
	engine, feed, cursors, _ := newAttacksSync(t, fetcher)

	_, err := engine.Sync(context.Background(), feed, model.SyncScopeFaction, "100", model.SyncOptions{})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cursors.sets)
}

func TestEngine_StoreErrorLeavesCursor(t *testing.T) {
	fetcher := pagedFetcher(t, twoPages)
	engine, feed, cursors, attacks := newAttacksSync(t, fetcher)
	attacks.err = errors.New("disk full")

	_, err := engine.Sync(context.Background(), feed, model.SyncScopeFaction, "100", model.SyncOptions{})

	assert.ErrorIs(t, err, attacks.err)
	assert.Equal(t, 0, cursors.sets)
}

func TestEngine_IterationGuardIsSoftStop(t *testing.T) {
	fetcher := &mockFetcher{fetch: func(model.BrokerRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"attacks":[{"id":1,"started":1000}],"next_cursor":"again"}`), nil
	}}
	engine, feed, cursors, _ := newAttacksSync(t, fetcher)

	res, err := engine.Sync(context.Background(), feed, model.SyncScopeFaction, "100", model.SyncOptions{})
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, application.MaxIterations, res.Pages)
	assert.Equal(t, 1, cursors.sets)
}

func TestEngine_UserLogsClassifies(t *testing.T) {
	fetcher := pagedFetcher(t, map[string]string{
		"": `{"log":[
			{"id":"a","timestamp":2000,"message":"You used 150 energy training strength","data":{"energy_used":150,"trains":15}},
			{"id":"b","timestamp":2100,"message":"You took a Xanax"},
			{"id":"c","timestamp":2200,"message":"You bought a plushie"}
		]}`,
	})
	logs := newMemLogStore()
	feed := application.NewUserLogsFeed(torn.NewCatalog("https://api.test"), logs)
	engine := application.NewEngine(fetcher, newMemCursorStore(), nil, func() time.Time { return syncNow })

	res, err := engine.Sync(context.Background(), feed, model.SyncScopePlayer, "7", model.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, int64(2200), res.LastSyncedAt)
	require.Contains(t, logs.gym, "a")
	assert.Equal(t, int64(150), logs.gym["a"].EnergyUsed)
	require.Contains(t, logs.consumable, "b")
	assert.Equal(t, int64(1), logs.consumable["b"].Quantity)
	assert.Len(t, logs.gym, 1)
	assert.Len(t, logs.consumable, 1)

	req := fetcher.requests()[0]
	assert.Equal(t, model.ScopeUser, req.Scope)
	assert.Equal(t, int64(7), req.User.PlayerID)
	u, _ := url.Parse(req.URL)
	assert.Equal(t, itoa(syncNow.Unix()-14*24*3600), u.Query().Get("from"))
}

func TestAttacksFeed_RejectsBadScopeKey(t *testing.T) {
	feed := application.NewAttacksFeed(torn.NewCatalog(""), newMemAttackStore())

	_, err := feed.PageRequest(model.SyncScopeFaction, "abc", 0, "")
	assert.Error(t, err)

	req, err := feed.PageRequest(model.SyncScopeGlobal, "", 0, "")
	require.NoError(t, err)
	assert.Equal(t, model.ScopeBasic, req.Scope)
}
