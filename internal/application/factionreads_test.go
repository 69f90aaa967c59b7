package application_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftdash/tornpanel/internal/adapter/driven/torn"
	"github.com/sftdash/tornpanel/internal/application"
	"github.com/sftdash/tornpanel/internal/domain/model"
)

func newFactionReads(fetcher *mockFetcher, kv *memKV, clock *fakeClock) *application.FactionReads {
	cache := application.NewResponseCache(kv, nil, clock.Now)
	return application.NewFactionReads(fetcher, torn.NewCatalog("https://api.test"), cache)
}

func TestFactionReads_MembersAreCached(t *testing.T) {
	fetcher := &mockFetcher{fetch: func(model.BrokerRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"members":[{"id":1,"name":"Ann","position":"Leader"},{"id":2,"name":"Bob"}]}`), nil
	}}
	kv := newMemKV()
	clock := newFakeClock(snapshotNow)
	reads := newFactionReads(fetcher, kv, clock)
	user := &model.UserContext{PlayerID: 1, FactionID: 100}

	first, err := reads.Members(context.Background(), 100, user)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	second, err := reads.Members(context.Background(), 100, user)
	require.NoError(t, err)

	assert.Len(t, first.Members, 2)
	assert.Equal(t, first, second)

	reqs := fetcher.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, model.ScopeFaction, reqs[0].Scope)
	assert.Equal(t, int64(100), *reqs[0].FactionID)
	assert.Contains(t, reqs[0].URL, "/v2/faction/members?id=100")

	_, ok := kv.get("cache:members:100")
	assert.True(t, ok)
}

func TestFactionReads_ContributorsKeyedByStat(t *testing.T) {
	fetcher := &mockFetcher{fetch: snapshotUpstream}
	kv := newMemKV()
	reads := newFactionReads(fetcher, kv, newFakeClock(snapshotNow))

	gym, err := reads.Contributors(context.Background(), 100, "gymenergy", nil)
	require.NoError(t, err)
	od, err := reads.Contributors(context.Background(), 100, "drugoverdoses", nil)
	require.NoError(t, err)

	assert.Len(t, gym, 2)
	assert.Equal(t, int64(500), gym[0].Value)
	require.Len(t, od, 1)
	assert.Equal(t, int64(2), od[0].Value)
	assert.Len(t, fetcher.requests(), 2)
	assert.ElementsMatch(t, []string{"cache:contributors:100:gymenergy", "cache:contributors:100:drugoverdoses"}, kv.keys())
}

func TestFactionReads_FetchErrorIsReturned(t *testing.T) {
	fetcher := &mockFetcher{fetch: func(model.BrokerRequest) (json.RawMessage, error) {
		return nil, application.ErrNoAvailableKey
	}}
	reads := newFactionReads(fetcher, newMemKV(), newFakeClock(snapshotNow))

	_, err := reads.Members(context.Background(), 100, nil)

	assert.ErrorIs(t, err, application.ErrNoAvailableKey)
}
