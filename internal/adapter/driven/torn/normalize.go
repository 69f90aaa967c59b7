package torn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

// ErrMissingID is returned for a record that carries no usable identifier.
var ErrMissingID = errors.New("record has no id")

type rawFaction struct {
	ID   flexInt    `json:"id"`
	Name flexString `json:"name"`
}

type rawParticipant struct {
	ID      flexInt     `json:"id"`
	Name    flexString  `json:"name"`
	Level   flexInt     `json:"level"`
	Faction *rawFaction `json:"faction"`
}

func (p *rawParticipant) factionID() flexInt {
	if p == nil || p.Faction == nil {
		return flexInt{}
	}
	return p.Faction.ID
}

func (p *rawParticipant) factionName() flexString {
	if p == nil || p.Faction == nil {
		return flexString{}
	}
	return p.Faction.Name
}

func (p *rawParticipant) orEmpty() *rawParticipant {
	if p == nil {
		return &rawParticipant{}
	}
	return p
}

type rawModifiers struct {
	FairFight    flexFloat `json:"fair_fight"`
	War          flexFloat `json:"war"`
	Retaliation  flexFloat `json:"retaliation"`
	Group        flexFloat `json:"group"`
	GroupAttack  flexFloat `json:"group_attack"`
	Overseas     flexFloat `json:"overseas"`
	Chain        flexFloat `json:"chain"`
	ChainBonus   flexFloat `json:"chain_bonus"`
	Warlord      flexFloat `json:"warlord"`
	WarlordBonus flexFloat `json:"warlord_bonus"`
}

type rawAttack struct {
	ID               flexInt    `json:"id"`
	Code             flexString `json:"code"`
	Started          flexInt    `json:"started"`
	TimestampStarted flexInt    `json:"timestamp_started"`
	Timestamp        flexInt    `json:"timestamp"`
	Ended            flexInt    `json:"ended"`
	TimestampEnded   flexInt    `json:"timestamp_ended"`

	Attacker            *rawParticipant `json:"attacker"`
	AttackerID          flexInt         `json:"attacker_id"`
	AttackerName        flexString      `json:"attacker_name"`
	AttackerLevel       flexInt         `json:"attacker_level"`
	AttackerFactionID   flexInt         `json:"attacker_faction_id"`
	AttackerFaction     flexInt         `json:"attacker_faction"`
	AttackerFactionName flexString      `json:"attacker_faction_name"`
	AttackerFactionname flexString      `json:"attacker_factionname"`

	Defender            *rawParticipant `json:"defender"`
	DefenderID          flexInt         `json:"defender_id"`
	DefenderName        flexString      `json:"defender_name"`
	DefenderLevel       flexInt         `json:"defender_level"`
	DefenderFactionID   flexInt         `json:"defender_faction_id"`
	DefenderFaction     flexInt         `json:"defender_faction"`
	DefenderFactionName flexString      `json:"defender_faction_name"`
	DefenderFactionname flexString      `json:"defender_factionname"`

	Result        flexString `json:"result"`
	RespectGain   flexFloat  `json:"respect_gain"`
	Respect       flexFloat  `json:"respect"`
	RespectLoss   flexFloat  `json:"respect_loss"`
	Chain         flexInt    `json:"chain"`
	IsInterrupted flexInt    `json:"is_interrupted"`
	IsStealthed   flexInt    `json:"is_stealthed"`
	Stealthed     flexInt    `json:"stealthed"`

	Modifiers *rawModifiers `json:"modifiers"`
	rawModifiers
}

// DecodeAttack normalizes one attack record. Field aliases from both API
// generations are accepted; modifiers default to 1 when absent.
func DecodeAttack(raw json.RawMessage) (model.Attack, error) {
	var r rawAttack
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.Attack{}, fmt.Errorf("decode attack: %w", err)
	}
	if !r.ID.ok || r.ID.v == 0 {
		return model.Attack{}, ErrMissingID
	}

	att, def := r.Attacker.orEmpty(), r.Defender.orEmpty()

	mods := r.rawModifiers
	if r.Modifiers != nil {
		mods = *r.Modifiers
	}

	return model.Attack{
		ID:                  r.ID.v,
		Code:                r.Code.v,
		Started:             firstInt(r.Started, r.TimestampStarted, r.Timestamp).v,
		Ended:               firstInt(r.Ended, r.TimestampEnded).v,
		AttackerID:          firstInt(att.ID, r.AttackerID).ptr(),
		AttackerName:        firstString(att.Name, r.AttackerName).ptr(),
		AttackerLevel:       firstInt(att.Level, r.AttackerLevel).ptr(),
		AttackerFactionID:   firstInt(att.factionID(), r.AttackerFactionID, r.AttackerFaction).ptr(),
		AttackerFactionName: firstString(att.factionName(), r.AttackerFactionName, r.AttackerFactionname).ptr(),
		DefenderID:          firstInt(def.ID, r.DefenderID).ptr(),
		DefenderName:        firstString(def.Name, r.DefenderName).ptr(),
		DefenderLevel:       firstInt(def.Level, r.DefenderLevel).ptr(),
		DefenderFactionID:   firstInt(def.factionID(), r.DefenderFactionID, r.DefenderFaction).ptr(),
		DefenderFactionName: firstString(def.factionName(), r.DefenderFactionName, r.DefenderFactionname).ptr(),
		Result:              r.Result.v,
		RespectGain:         firstFloat(r.RespectGain, r.Respect).v,
		RespectLoss:         r.RespectLoss.v,
		Chain:               r.Chain.v,
		IsInterrupted:       r.IsInterrupted.v == 1,
		IsStealthed:         firstInt(r.IsStealthed, r.Stealthed).v == 1,
		Modifiers: model.AttackModifiers{
			FairFight:    floatOr(mods.FairFight, 1),
			War:          floatOr(mods.War, 1),
			Retaliation:  floatOr(mods.Retaliation, 1),
			GroupAttack:  floatOr(firstFloat(mods.GroupAttack, mods.Group), 1),
			Overseas:     floatOr(mods.Overseas, 1),
			ChainBonus:   floatOr(firstFloat(mods.ChainBonus, mods.Chain), 1),
			WarlordBonus: floatOr(firstFloat(mods.WarlordBonus, mods.Warlord), 1),
		},
	}, nil
}

var (
	gymPattern   = regexp.MustCompile(`\b(used|spent)\b.*\b\d+\b.*\benergy\b`)
	xanaxPattern = regexp.MustCompile(`xanax`)
)

type rawLogFields struct {
	EnergyUsed flexInt    `json:"energy_used"`
	Trains     flexInt    `json:"trains"`
	GymID      flexInt    `json:"gym_id"`
	Gym        flexInt    `json:"gym"`
	Stat       flexString `json:"stat"`
	Delta      flexFloat  `json:"delta"`
	Qty        flexInt    `json:"qty"`
	Quantity   flexInt    `json:"quantity"`
}

type rawLogEntry struct {
	ID        flexString `json:"id"`
	Timestamp flexInt    `json:"timestamp"`
	TS        flexInt    `json:"ts"`
	Message   flexString `json:"message"`
	Title     flexString `json:"title"`
	Details   *struct {
		Title flexString `json:"title"`
	} `json:"details"`
	Data *rawLogFields `json:"data"`
	rawLogFields
}

// ClassifyLogMessage sorts a log line into gym training, Xanax use or other.
func ClassifyLogMessage(message string) model.LogKind {
	msg := strings.ToLower(message)
	switch {
	case gymPattern.MatchString(msg):
		return model.LogKindGym
	case xanaxPattern.MatchString(msg):
		return model.LogKindConsumable
	default:
		return model.LogKindOther
	}
}

// DecodeLogEntry normalizes and classifies one user log record.
func DecodeLogEntry(raw json.RawMessage, playerID int64) (model.LogEntry, error) {
	var r rawLogEntry
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.LogEntry{}, fmt.Errorf("decode log entry: %w", err)
	}
	if !r.ID.ok {
		return model.LogEntry{}, ErrMissingID
	}

	message := firstString(r.Message, r.Title)
	if !message.ok && r.Details != nil {
		message = r.Details.Title
	}

	f := r.rawLogFields
	if r.Data != nil {
		d := *r.Data
		f = rawLogFields{
			EnergyUsed: firstInt(f.EnergyUsed, d.EnergyUsed),
			Trains:     firstInt(f.Trains, d.Trains),
			GymID:      firstInt(f.GymID, d.GymID, f.Gym, d.Gym),
			Stat:       firstString(f.Stat, d.Stat),
			Delta:      firstFloat(f.Delta, d.Delta),
			Qty:        firstInt(f.Qty, d.Qty, f.Quantity, d.Quantity),
		}
	}

	entry := model.LogEntry{
		ID:        r.ID.v,
		PlayerID:  playerID,
		Timestamp: firstInt(r.Timestamp, r.TS).v,
		Kind:      ClassifyLogMessage(message.v),
		Message:   message.v,
		Raw:       append([]byte(nil), raw...),
	}

	switch entry.Kind {
	case model.LogKindGym:
		entry.EnergyUsed = f.EnergyUsed.v
		entry.Trains = f.Trains.v
		entry.GymID = firstInt(f.GymID, f.Gym).v
		entry.Stat = f.Stat.v
		entry.Delta = f.Delta.v
	case model.LogKindConsumable:
		entry.Item = "Xanax"
		entry.Quantity = 1
		if q := firstInt(f.Qty, f.Quantity); q.ok && q.v > 0 {
			entry.Quantity = q.v
		}
	}

	return entry, nil
}

type rawMember struct {
	PlayerID flexInt    `json:"player_id"`
	ID       flexInt    `json:"id"`
	Name     flexString `json:"name"`
	Position flexString `json:"position"`
	Role     flexString `json:"role"`
	Joined   flexInt    `json:"joined"`
	JoinedAt flexInt    `json:"joined_at"`
	Level    flexInt    `json:"level"`
}

// DecodeRoster extracts the faction profile and its members. Members may be
// an array of objects or an object keyed by player id; either may sit under
// "members" or "data". A profile nested under "basic" is accepted too.
func DecodeRoster(body []byte, factionID int64) (model.Faction, []model.RosterMember, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return model.Faction{}, nil, fmt.Errorf("decode roster: %w", err)
	}

	profile := top
	if basic, ok := top["basic"]; ok {
		var nested map[string]json.RawMessage
		if json.Unmarshal(basic, &nested) == nil {
			profile = nested
		}
	}

	faction := model.Faction{
		ID:   factionID,
		Name: firstString(stringField(profile, "name"), stringField(profile, "faction_name")).ptr(),
		Tag:  stringField(profile, "tag").ptr(),
	}

	rawMembers, ok := top["members"]
	if !ok {
		rawMembers = top["data"]
	}

	members, err := decodeMembers(rawMembers, factionID)
	if err != nil {
		return model.Faction{}, nil, err
	}
	return faction, members, nil
}

func decodeMembers(raw json.RawMessage, factionID int64) ([]model.RosterMember, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	type keyedMember struct {
		key string
		m   rawMember
	}
	var entries []keyedMember

	if raw[0] == '[' {
		var list []rawMember
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode member list: %w", err)
		}
		for _, m := range list {
			entries = append(entries, keyedMember{m: m})
		}
	} else {
		var keyed map[string]rawMember
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, fmt.Errorf("decode member map: %w", err)
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entries = append(entries, keyedMember{key: k, m: keyed[k]})
		}
	}

	members := make([]model.RosterMember, 0, len(entries))
	for _, e := range entries {
		id := firstInt(e.m.PlayerID, e.m.ID)
		if e.key != "" {
			if n, err := strconv.ParseInt(e.key, 10, 64); err == nil {
				id = flexInt{v: n, ok: true}
			}
		}
		if !id.ok || id.v == 0 {
			continue
		}
		members = append(members, model.RosterMember{
			FactionID: factionID,
			PlayerID:  id.v,
			Name:      e.m.Name.v,
			Position:  firstString(e.m.Position, e.m.Role).ptr(),
			JoinedAt:  firstInt(e.m.Joined, e.m.JoinedAt).ptr(),
			Level:     e.m.Level.ptr(),
		})
	}
	return members, nil
}

type rawContributor struct {
	ID         flexInt    `json:"id"`
	PlayerID   flexInt    `json:"player_id"`
	Username   flexString `json:"username"`
	Name       flexString `json:"name"`
	PlayerName flexString `json:"player_name"`
	Value      flexInt    `json:"value"`
}

// DecodeContributors extracts the contributor list for one stat. The list
// may be an array or an object keyed by player id whose values are either
// objects or bare numbers.
func DecodeContributors(body []byte) ([]model.Contributor, error) {
	var top struct {
		Contributors json.RawMessage `json:"contributors"`
	}
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode contributors: %w", err)
	}

	raw := bytes.TrimSpace(top.Contributors)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var out []model.Contributor
	add := func(id flexInt, c rawContributor) {
		if !id.ok || id.v == 0 {
			return
		}
		out = append(out, model.Contributor{
			PlayerID: id.v,
			Name:     firstString(c.Username, c.Name, c.PlayerName).ptr(),
			Value:    c.Value.v,
		})
	}

	if raw[0] == '[' {
		var list []rawContributor
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode contributor list: %w", err)
		}
		for _, c := range list {
			add(firstInt(c.ID, c.PlayerID), c)
		}
		return out, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("decode contributor map: %w", err)
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		n, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		var c rawContributor
		v := bytes.TrimSpace(keyed[k])
		if len(v) > 0 && v[0] == '{' {
			if err := json.Unmarshal(v, &c); err != nil {
				continue
			}
		} else {
			_ = c.Value.UnmarshalJSON(v)
		}
		add(flexInt{v: n, ok: true}, c)
	}
	return out, nil
}

// DecodePersonalStat reads a personal stat value. It accepts the value at
// the top level, inside a "personalstats" object, or as a
// {"name","value"} element of a "personalstats" array. Missing means 0.
func DecodePersonalStat(body []byte, stat string) (int64, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return 0, fmt.Errorf("decode personal stats: %w", err)
	}

	if raw, ok := top[stat]; ok {
		var v flexInt
		_ = v.UnmarshalJSON(raw)
		if v.ok {
			return v.v, nil
		}
	}

	ps := bytes.TrimSpace(top["personalstats"])
	if len(ps) == 0 {
		return 0, nil
	}

	if ps[0] == '[' {
		var list []struct {
			Name  string  `json:"name"`
			Value flexInt `json:"value"`
		}
		if err := json.Unmarshal(ps, &list); err != nil {
			return 0, fmt.Errorf("decode personal stat list: %w", err)
		}
		for _, item := range list {
			if item.Name == stat {
				return item.Value.v, nil
			}
		}
		return 0, nil
	}

	var obj map[string]flexInt
	if err := json.Unmarshal(ps, &obj); err != nil {
		return 0, nil
	}
	return obj[stat].v, nil
}

func stringField(m map[string]json.RawMessage, key string) flexString {
	var s flexString
	if raw, ok := m[key]; ok {
		_ = s.UnmarshalJSON(raw)
	}
	return s
}
