package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Default lookbacks for a first sync without a range.
const (
	AttacksLookback  = 30 * 24 * time.Hour
	UserLogsLookback = 14 * 24 * time.Hour
)

// Compile-time checks that the feeds implement Feed.
var (
	_ Feed = (*AttacksFeed)(nil)
	_ Feed = (*UserLogsFeed)(nil)
)

// AttacksFeed syncs the attacks of a player, a faction or everyone.
type AttacksFeed struct {
	catalog driven.UpstreamCatalog
	store   driven.AttackStore
}

// NewAttacksFeed creates the attacks feed.
func NewAttacksFeed(catalog driven.UpstreamCatalog, store driven.AttackStore) *AttacksFeed {
	return &AttacksFeed{catalog: catalog, store: store}
}

func (f *AttacksFeed) Entity() string { return "attacks" }

func (f *AttacksFeed) DefaultLookback() time.Duration { return AttacksLookback }

// PageRequest routes faction attacks through faction credentials and player
// attacks through the player's own.
func (f *AttacksFeed) PageRequest(scope model.SyncScope, key string, since int64, cursor string) (model.BrokerRequest, error) {
	if scope == model.SyncScopeGlobal {
		return model.BrokerRequest{URL: f.catalog.AttacksURL(scope, 0, since, cursor), Scope: model.ScopeBasic}, nil
	}

	id, err := parseScopeKey(key)
	if err != nil {
		return model.BrokerRequest{}, err
	}
	req := model.BrokerRequest{URL: f.catalog.AttacksURL(scope, id, since, cursor)}
	switch scope {
	case model.SyncScopeFaction:
		req.Scope = model.ScopeFaction
		req.FactionID = &id
	case model.SyncScopePlayer:
		req.Scope = model.ScopeUser
		req.User = &model.UserContext{PlayerID: id}
	default:
		return model.BrokerRequest{}, fmt.Errorf("unsupported attacks scope %q", scope)
	}
	return req, nil
}

func (f *AttacksFeed) Decode(body []byte, _ model.SyncScope, _ string) ([]model.Record, string, error) {
	attacks, next, err := f.catalog.DecodeAttackPage(body)
	if err != nil {
		return nil, "", err
	}
	records := make([]model.Record, len(attacks))
	for i, a := range attacks {
		records[i] = a
	}
	return records, next, nil
}

func (f *AttacksFeed) Store(ctx context.Context, rec model.Record) error {
	a, ok := rec.(model.Attack)
	if !ok {
		return fmt.Errorf("attacks feed: unexpected record %T", rec)
	}
	return f.store.UpsertAttack(ctx, a)
}

// UserLogsFeed syncs a player's log and keeps the gym training and Xanax
// entries. Other entries are counted but not stored.
type UserLogsFeed struct {
	catalog driven.UpstreamCatalog
	store   driven.LogStore
}

// NewUserLogsFeed creates the user logs feed.
func NewUserLogsFeed(catalog driven.UpstreamCatalog, store driven.LogStore) *UserLogsFeed {
	return &UserLogsFeed{catalog: catalog, store: store}
}

func (f *UserLogsFeed) Entity() string { return "user_logs" }

func (f *UserLogsFeed) DefaultLookback() time.Duration { return UserLogsLookback }

func (f *UserLogsFeed) PageRequest(scope model.SyncScope, key string, since int64, cursor string) (model.BrokerRequest, error) {
	if scope != model.SyncScopePlayer {
		return model.BrokerRequest{}, fmt.Errorf("unsupported user logs scope %q", scope)
	}
	id, err := parseScopeKey(key)
	if err != nil {
		return model.BrokerRequest{}, err
	}
	return model.BrokerRequest{
		URL:   f.catalog.UserLogsURL(id, since, cursor),
		Scope: model.ScopeUser,
		User:  &model.UserContext{PlayerID: id},
	}, nil
}

func (f *UserLogsFeed) Decode(body []byte, _ model.SyncScope, key string) ([]model.Record, string, error) {
	id, err := parseScopeKey(key)
	if err != nil {
		return nil, "", err
	}
	entries, next, err := f.catalog.DecodeLogPage(body, id)
	if err != nil {
		return nil, "", err
	}
	records := make([]model.Record, len(entries))
	for i, e := range entries {
		records[i] = e
	}
	return records, next, nil
}

func (f *UserLogsFeed) Store(ctx context.Context, rec model.Record) error {
	e, ok := rec.(model.LogEntry)
	if !ok {
		return fmt.Errorf("user logs feed: unexpected record %T", rec)
	}
	switch e.Kind {
	case model.LogKindGym:
		return f.store.UpsertGymLog(ctx, e)
	case model.LogKindConsumable:
		return f.store.UpsertConsumableLog(ctx, e)
	default:
		return nil
	}
}

func parseScopeKey(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid scope key %q", key)
	}
	return id, nil
}
