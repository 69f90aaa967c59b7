package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

// --- Counter store ---

type memKV struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	putErr error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memKV) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

// --- Credential store ---

type touchCall struct {
	ID int64
	At time.Time
}

type mockCredentialStore struct {
	mu sync.Mutex

	findUser    func(playerID int64) (*model.Credential, error)
	findFaction func(factionID int64) (*model.Credential, error)
	findPool    func(filter model.PoolFilter) (*model.Credential, error)
	listFaction func(factionID int64, limit int) ([]model.Credential, error)
	factionIDs  []int64

	calls   []string
	touches []touchCall
	created []model.Credential
	revoked []int64
	stored  []model.Credential
}

func (m *mockCredentialStore) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockCredentialStore) FindUserCredential(_ context.Context, playerID int64) (*model.Credential, error) {
	m.record("user")
	if m.findUser == nil {
		return nil, nil
	}
	return m.findUser(playerID)
}

func (m *mockCredentialStore) FindFactionCredential(_ context.Context, factionID int64) (*model.Credential, error) {
	m.record("faction")
	if m.findFaction == nil {
		return nil, nil
	}
	return m.findFaction(factionID)
}

func (m *mockCredentialStore) FindSharedPool(_ context.Context, filter model.PoolFilter) (*model.Credential, error) {
	if filter.FactionAccess {
		m.record("faction_pool")
	} else {
		m.record("public_pool")
	}
	if m.findPool == nil {
		return nil, nil
	}
	return m.findPool(filter)
}

func (m *mockCredentialStore) ListFactionCredentials(_ context.Context, factionID int64, limit int) ([]model.Credential, error) {
	m.record("faction_list")
	if m.listFaction == nil {
		return nil, nil
	}
	return m.listFaction(factionID, limit)
}

func (m *mockCredentialStore) ListFactionIDs(_ context.Context) ([]int64, error) {
	return m.factionIDs, nil
}

func (m *mockCredentialStore) Create(_ context.Context, cred model.Credential) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, cred)
	return int64(len(m.created)), nil
}

func (m *mockCredentialStore) Revoke(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, id)
	return nil
}

func (m *mockCredentialStore) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touches = append(m.touches, touchCall{ID: id, At: at})
	return nil
}

func (m *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	return m.stored, nil
}

// --- Secret codec ---

// fakeCodec "encrypts" by prefixing. Blobs without the prefix fail to
// decrypt, standing in for corrupted rows.
type fakeCodec struct{}

var errFakeDecrypt = errors.New("fake decrypt failed")

func (fakeCodec) Encrypt(plaintext, passphrase string) (string, error) {
	return "sealed:" + passphrase + ":" + plaintext, nil
}

func (fakeCodec) Decrypt(blob, passphrase string) (string, error) {
	prefix := "sealed:" + passphrase + ":"
	if !strings.HasPrefix(blob, prefix) {
		return "", errFakeDecrypt
	}
	return strings.TrimPrefix(blob, prefix), nil
}

func sealed(plaintext string) string {
	s, _ := fakeCodec{}.Encrypt(plaintext, testPassphrase)
	return s
}

const testPassphrase = "test-passphrase"

// --- Cursor store ---

type memCursorStore struct {
	mu      sync.Mutex
	cursors map[string]model.Cursor
	sets    int
	getErr  error
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]model.Cursor)}
}

func cursorKey(entity string, scope model.SyncScope, key string) string {
	return entity + "|" + string(scope) + "|" + key
}

func (m *memCursorStore) Get(_ context.Context, entity string, scope model.SyncScope, key string) (*model.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.cursors[cursorKey(entity, scope, key)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memCursorStore) Set(_ context.Context, c model.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.cursors[cursorKey(c.Entity, c.Scope, c.Key)] = c
	return nil
}

// --- Fetcher ---

type mockFetcher struct {
	mu    sync.Mutex
	fetch func(req model.BrokerRequest) (json.RawMessage, error)
	reqs  []model.BrokerRequest
}

func (m *mockFetcher) FetchJSON(_ context.Context, req model.BrokerRequest) (json.RawMessage, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	return m.fetch(req)
}

func (m *mockFetcher) requests() []model.BrokerRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.BrokerRequest(nil), m.reqs...)
}

// --- Target stores ---

type memAttackStore struct {
	mu      sync.Mutex
	attacks map[int64]model.Attack
	err     error
}

func newMemAttackStore() *memAttackStore {
	return &memAttackStore{attacks: make(map[int64]model.Attack)}
}

func (m *memAttackStore) UpsertAttack(_ context.Context, a model.Attack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.attacks[a.ID] = a
	return nil
}

type memLogStore struct {
	gym        map[string]model.LogEntry
	consumable map[string]model.LogEntry
}

func newMemLogStore() *memLogStore {
	return &memLogStore{gym: make(map[string]model.LogEntry), consumable: make(map[string]model.LogEntry)}
}

func (m *memLogStore) UpsertGymLog(_ context.Context, e model.LogEntry) error {
	if _, ok := m.gym[e.ID]; !ok {
		m.gym[e.ID] = e
	}
	return nil
}

func (m *memLogStore) UpsertConsumableLog(_ context.Context, e model.LogEntry) error {
	if _, ok := m.consumable[e.ID]; !ok {
		m.consumable[e.ID] = e
	}
	return nil
}

type memRosterStore struct {
	mu       sync.Mutex
	factions map[int64]model.Faction
	members  map[int64]map[int64]model.RosterMember
	history  []model.RosterChange
}

func newMemRosterStore() *memRosterStore {
	return &memRosterStore{
		factions: make(map[int64]model.Faction),
		members:  make(map[int64]map[int64]model.RosterMember),
	}
}

func (m *memRosterStore) UpsertFaction(_ context.Context, f model.Faction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factions[f.ID] = f
	return nil
}

func (m *memRosterStore) UpsertMember(_ context.Context, rm model.RosterMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[rm.FactionID] == nil {
		m.members[rm.FactionID] = make(map[int64]model.RosterMember)
	}
	m.members[rm.FactionID][rm.PlayerID] = rm
	return nil
}

func (m *memRosterStore) ListMembers(_ context.Context, factionID int64) ([]model.RosterMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RosterMember, 0, len(m.members[factionID]))
	for _, rm := range m.members[factionID] {
		out = append(out, rm)
	}
	return out, nil
}

func (m *memRosterStore) RemoveMember(_ context.Context, factionID, playerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[factionID], playerID)
	return nil
}

func (m *memRosterStore) AppendHistory(_ context.Context, c model.RosterChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, c)
	return nil
}

type memSnapshotStore struct {
	mu       sync.Mutex
	contribs []model.ContribSnapshot
	personal []model.PersonalStatSnapshot
	cutoffs  []int64
}

func (m *memSnapshotStore) UpsertContribution(_ context.Context, s model.ContribSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contribs = append(m.contribs, s)
	return nil
}

func (m *memSnapshotStore) UpsertPersonalStat(_ context.Context, s model.PersonalStatSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personal = append(m.personal, s)
	return nil
}

func (m *memSnapshotStore) PruneBefore(_ context.Context, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 0, nil
}

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func ptr[T any](v T) *T { return &v }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
