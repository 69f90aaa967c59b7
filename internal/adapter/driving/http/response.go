package httphandler

import (
	"cmp"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/sftdash/tornpanel/internal/application"
	"github.com/sftdash/tornpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// RegisterCredentialRequest is the JSON body for the register credential
// endpoint. Owner is one of user, faction or unowned.
type RegisterCredentialRequest struct {
	APIKey           string `json:"api_key"`
	Owner            string `json:"owner"`
	PlayerID         *int64 `json:"player_id"`
	FactionID        *int64 `json:"faction_id"`
	Shareable        bool   `json:"shareable"`
	HasFactionAccess bool   `json:"has_faction_access"`
}

// CredentialCreatedResponse carries the id of a newly stored credential.
type CredentialCreatedResponse struct {
	ID int64 `json:"id"`
}

// ProbeResponse lists the candidates the broker would try, in order.
type ProbeResponse struct {
	Scope      string                 `json:"scope"`
	Candidates []model.CandidateProbe `json:"candidates"`
}

// syncOptions are the shared knobs of the sync endpoints.
type syncOptions struct {
	Range            string `json:"range"`
	SinceTS          *int64 `json:"since_ts"`
	ResumeFromLastID bool   `json:"resume_from_last_id"`
}

func (o syncOptions) options() model.SyncOptions {
	return model.SyncOptions{Range: o.Range, SinceTS: o.SinceTS, ResumeFromLastID: o.ResumeFromLastID}
}

// SyncAttacksRequest is the JSON body for the attacks sync endpoint. Key is
// the faction or player id; it is ignored for global scope.
type SyncAttacksRequest struct {
	Scope string `json:"scope"`
	Key   string `json:"key"`
	syncOptions
}

// SyncLogsRequest is the JSON body for the user log sync endpoint.
type SyncLogsRequest struct {
	PlayerID int64 `json:"player_id"`
	syncOptions
}

// SyncResponse reports one completed delta sync.
type SyncResponse struct {
	Entity       string  `json:"entity"`
	Imported     int     `json:"imported"`
	Pages        int     `json:"pages"`
	LastSyncedAt int64   `json:"last_synced_at"`
	LastID       *string `json:"last_id"`
	Truncated    bool    `json:"truncated"`
}

// RosterSyncResponse reports one roster sync.
type RosterSyncResponse struct {
	FactionID int64 `json:"faction_id"`
	Upserted  int   `json:"upserted"`
	Joined    int   `json:"joined"`
	Removed   int   `json:"removed"`
}

// SnapshotResponse reports one snapshot run.
type SnapshotResponse struct {
	FactionID     int64 `json:"faction_id"`
	Members       int   `json:"members"`
	Contributions int   `json:"contributions"`
	PersonalStats int   `json:"personal_stats"`
	Failed        int   `json:"failed"`
}

// MemberResponse is the JSON representation of a faction member.
type MemberResponse struct {
	PlayerID int64   `json:"player_id"`
	Name     string  `json:"name"`
	Position *string `json:"position"`
	JoinedAt *int64  `json:"joined_at"`
	Level    *int64  `json:"level"`
}

// MembersResponse is the JSON representation of a live faction roster.
type MembersResponse struct {
	FactionID int64            `json:"faction_id"`
	Name      *string          `json:"name"`
	Tag       *string          `json:"tag"`
	Members   []MemberResponse `json:"members"`
}

// ContributorResponse is one contributor for a faction stat.
type ContributorResponse struct {
	PlayerID int64   `json:"player_id"`
	Name     *string `json:"name"`
	Value    int64   `json:"value"`
}

// PlayerStatResponse is one player's value for a personal stat.
type PlayerStatResponse struct {
	PlayerID int64 `json:"player_id"`
	Value    int64 `json:"value"`
}

// PersonalStatsResponse lists a personal stat across a faction's members,
// ordered by player id.
type PersonalStatsResponse struct {
	FactionID int64                `json:"faction_id"`
	Stat      string               `json:"stat"`
	Players   []PlayerStatResponse `json:"players"`
}

func toSyncResponse(r model.SyncResult) SyncResponse {
	return SyncResponse{
		Entity:       r.Entity,
		Imported:     r.Imported,
		Pages:        r.Pages,
		LastSyncedAt: r.LastSyncedAt,
		LastID:       r.LastID,
		Truncated:    r.Truncated,
	}
}

func toMembersResponse(fm application.FactionMembers) MembersResponse {
	members := make([]MemberResponse, 0, len(fm.Members))
	for _, m := range fm.Members {
		members = append(members, MemberResponse{
			PlayerID: m.PlayerID,
			Name:     m.Name,
			Position: m.Position,
			JoinedAt: m.JoinedAt,
			Level:    m.Level,
		})
	}
	return MembersResponse{
		FactionID: fm.Faction.ID,
		Name:      fm.Faction.Name,
		Tag:       fm.Faction.Tag,
		Members:   members,
	}
}

func toContributorResponse(c model.Contributor) ContributorResponse {
	return ContributorResponse{PlayerID: c.PlayerID, Name: c.Name, Value: c.Value}
}

func toPersonalStatsResponse(factionID int64, stat string, values map[int64]int64) PersonalStatsResponse {
	players := make([]PlayerStatResponse, 0, len(values))
	for id, v := range values {
		players = append(players, PlayerStatResponse{PlayerID: id, Value: v})
	}
	slices.SortFunc(players, func(a, b PlayerStatResponse) int { return cmp.Compare(a.PlayerID, b.PlayerID) })
	return PersonalStatsResponse{FactionID: factionID, Stat: stat, Players: players}
}
