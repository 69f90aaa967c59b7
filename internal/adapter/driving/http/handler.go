package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sftdash/tornpanel/internal/application"
	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Identity headers set by the authentication layer in front of this service.
const (
	HeaderPlayerID  = "X-Player-ID"
	HeaderFactionID = "X-Faction-ID"
	HeaderAPIKey    = "X-Api-Key"
)

// CredentialManager registers and revokes pool credentials.
type CredentialManager interface {
	Register(ctx context.Context, in application.NewCredential) (int64, error)
	Revoke(ctx context.Context, id int64) error
}

// SyncRunner runs syncs on the scheduler goroutine.
type SyncRunner interface {
	SyncAttacks(ctx context.Context, scope model.SyncScope, key string, opts model.SyncOptions) (model.SyncResult, error)
	SyncUserLogs(ctx context.Context, playerID int64, opts model.SyncOptions) (model.SyncResult, error)
	SyncRoster(ctx context.Context, factionID int64) (model.RosterSyncResult, error)
	RefreshSnapshot(ctx context.Context, factionID int64) (model.SnapshotResult, error)
}

// FactionReader serves cached live faction data.
type FactionReader interface {
	Members(ctx context.Context, factionID int64, user *model.UserContext) (application.FactionMembers, error)
	Contributors(ctx context.Context, factionID int64, stat string, user *model.UserContext) ([]model.Contributor, error)
}

// StatsReader reads live personal stats for a faction's stored roster.
type StatsReader interface {
	MemberPersonalStats(ctx context.Context, factionID int64, user *model.UserContext) (map[int64]int64, error)
}

// KeyBroker is the part of the broker the API exposes for diagnostics.
type KeyBroker interface {
	Perform(ctx context.Context, req model.BrokerRequest) (*model.UpstreamResponse, error)
	Inspect(ctx context.Context, scope model.Scope, user *model.UserContext, factionID *int64) []model.CandidateProbe
}

// Options toggles debug-only behavior.
type Options struct {
	// Debug enables the upstream passthrough and broker debug headers.
	Debug bool
	// AllowSessionKey honors the X-Api-Key header. Whether that key is tried
	// before or after the pool is the broker's concern.
	AllowSessionKey bool
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	credentials CredentialManager
	syncs       SyncRunner
	reads       FactionReader
	stats       StatsReader
	broker      KeyBroker
	metrics     http.Handler
	opts        Options
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. metrics may
// be nil, in which case /metrics is not served.
func NewHandler(
	credentials CredentialManager,
	syncs SyncRunner,
	reads FactionReader,
	stats StatsReader,
	broker KeyBroker,
	metrics http.Handler,
	opts Options,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		credentials: credentials,
		syncs:       syncs,
		reads:       reads,
		stats:       stats,
		broker:      broker,
		metrics:     metrics,
		opts:        opts,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/credentials", h.RegisterCredential)
	mux.HandleFunc("DELETE /api/v1/credentials/{id}", h.RevokeCredential)
	mux.HandleFunc("GET /api/v1/credentials/probe", h.ProbeCredentials)
	mux.HandleFunc("POST /api/v1/sync/attacks", h.SyncAttacks)
	mux.HandleFunc("POST /api/v1/sync/logs", h.SyncUserLogs)
	mux.HandleFunc("POST /api/v1/factions/{id}/roster/sync", h.SyncRoster)
	mux.HandleFunc("POST /api/v1/factions/{id}/snapshot", h.RefreshSnapshot)
	mux.HandleFunc("GET /api/v1/factions/{id}/members", h.FactionMembers)
	mux.HandleFunc("GET /api/v1/factions/{id}/contributors", h.FactionContributors)
	mux.HandleFunc("GET /api/v1/factions/{id}/xanax", h.FactionXanax)
	if h.opts.Debug {
		mux.HandleFunc("GET /api/v1/debug/upstream", h.DebugUpstream)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// RegisterCredential encrypts and stores a new pool credential.
func (h *Handler) RegisterCredential(w http.ResponseWriter, r *http.Request) {
	var req RegisterCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.credentials.Register(r.Context(), application.NewCredential{
		APIKey:           req.APIKey,
		Owner:            model.OwnerClass(req.Owner),
		PlayerID:         req.PlayerID,
		FactionID:        req.FactionID,
		Shareable:        req.Shareable,
		HasFactionAccess: req.HasFactionAccess,
	})
	if err != nil {
		h.writeServiceError(w, "failed to register credential", err)
		return
	}

	writeJSON(w, http.StatusCreated, CredentialCreatedResponse{ID: id})
}

// RevokeCredential soft-deletes a credential.
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.credentials.Revoke(r.Context(), id); err != nil {
		h.writeServiceError(w, "failed to revoke credential", err, "credential_id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ProbeCredentials reports which candidates the broker would try for the
// caller without calling upstream.
func (h *Handler) ProbeCredentials(w http.ResponseWriter, r *http.Request) {
	scope := model.Scope(r.URL.Query().Get("scope"))
	switch scope {
	case "":
		scope = model.ScopeBasic
	case model.ScopeBasic, model.ScopeUser, model.ScopeFaction:
	default:
		writeError(w, http.StatusBadRequest, "invalid scope")
		return
	}

	var factionID *int64
	if raw := r.URL.Query().Get("faction_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid faction_id")
			return
		}
		factionID = &n
	}

	probes := h.broker.Inspect(r.Context(), scope, h.userFromRequest(r), factionID)
	writeJSON(w, http.StatusOK, ProbeResponse{Scope: string(scope), Candidates: probes})
}

// SyncAttacks runs an attacks delta sync for the requested scope.
func (h *Handler) SyncAttacks(w http.ResponseWriter, r *http.Request) {
	var req SyncAttacksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scope := model.SyncScope(req.Scope)
	switch scope {
	case model.SyncScopeGlobal:
		req.Key = "global"
	case model.SyncScopeFaction, model.SyncScopePlayer:
		id, err := strconv.ParseInt(strings.TrimSpace(req.Key), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "key must be a positive "+string(scope)+" id")
			return
		}
		req.Key = strconv.FormatInt(id, 10)
	default:
		writeError(w, http.StatusBadRequest, "scope must be global, faction or player")
		return
	}

	res, err := h.syncs.SyncAttacks(r.Context(), scope, req.Key, req.options())
	if err != nil {
		h.writeServiceError(w, "attacks sync failed", err, "scope", scope, "key", req.Key)
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(res))
}

// SyncUserLogs runs a log delta sync for the body's player, defaulting to
// the caller.
func (h *Handler) SyncUserLogs(w http.ResponseWriter, r *http.Request) {
	var req SyncLogsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	playerID := req.PlayerID
	if playerID == 0 {
		playerID = h.userFromRequest(r).PlayerID
	}
	if playerID <= 0 {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}

	res, err := h.syncs.SyncUserLogs(r.Context(), playerID, req.options())
	if err != nil {
		h.writeServiceError(w, "user log sync failed", err, "player_id", playerID)
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(res))
}

// SyncRoster refreshes a faction's stored roster.
func (h *Handler) SyncRoster(w http.ResponseWriter, r *http.Request) {
	factionID, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.syncs.SyncRoster(r.Context(), factionID)
	if err != nil {
		h.writeServiceError(w, "roster sync failed", err, "faction_id", factionID)
		return
	}

	writeJSON(w, http.StatusOK, RosterSyncResponse{
		FactionID: res.FactionID,
		Upserted:  res.Upserted,
		Joined:    res.Joined,
		Removed:   res.Removed,
	})
}

// RefreshSnapshot captures today's snapshot for a faction unless one was
// taken in the last few minutes.
func (h *Handler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	factionID, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.syncs.RefreshSnapshot(r.Context(), factionID)
	if errors.Is(err, application.ErrSnapshotFresh) {
		writeError(w, http.StatusTooManyRequests, "snapshot refreshed recently")
		return
	}
	if err != nil {
		h.writeServiceError(w, "snapshot refresh failed", err, "faction_id", factionID)
		return
	}

	writeJSON(w, http.StatusOK, SnapshotResponse{
		FactionID:     res.FactionID,
		Members:       res.Members,
		Contributions: res.Contributions,
		PersonalStats: res.PersonalStats,
		Failed:        res.Failed,
	})
}

// FactionMembers returns the live member list, served from cache when fresh.
func (h *Handler) FactionMembers(w http.ResponseWriter, r *http.Request) {
	factionID, ok := pathID(w, r)
	if !ok {
		return
	}

	fm, err := h.reads.Members(r.Context(), factionID, h.userFromRequest(r))
	if err != nil {
		h.writeServiceError(w, "failed to read faction members", err, "faction_id", factionID)
		return
	}

	writeJSON(w, http.StatusOK, toMembersResponse(fm))
}

// FactionContributors returns the current contributors for one stat.
func (h *Handler) FactionContributors(w http.ResponseWriter, r *http.Request) {
	factionID, ok := pathID(w, r)
	if !ok {
		return
	}
	stat := r.URL.Query().Get("stat")
	if !isValidStat(stat) {
		writeError(w, http.StatusBadRequest, "invalid stat")
		return
	}

	contributors, err := h.reads.Contributors(r.Context(), factionID, stat, h.userFromRequest(r))
	if err != nil {
		h.writeServiceError(w, "failed to read contributors", err, "faction_id", factionID, "stat", stat)
		return
	}

	resp := make([]ContributorResponse, 0, len(contributors))
	for _, c := range contributors {
		resp = append(resp, toContributorResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// FactionXanax returns the live Xanax count of every stored member, read
// with the caller's identity. Members whose lookup failed are omitted.
func (h *Handler) FactionXanax(w http.ResponseWriter, r *http.Request) {
	factionID, ok := pathID(w, r)
	if !ok {
		return
	}

	values, err := h.stats.MemberPersonalStats(r.Context(), factionID, h.userFromRequest(r))
	if err != nil {
		h.writeServiceError(w, "failed to read member xanax", err, "faction_id", factionID)
		return
	}

	writeJSON(w, http.StatusOK, toPersonalStatsResponse(factionID, "xantaken", values))
}

// DebugUpstream relays a GET for the given upstream path through the broker
// and exposes which credential served it.
func (h *Handler) DebugUpstream(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if !strings.HasPrefix(target, "https://") && !strings.HasPrefix(target, "http://") {
		writeError(w, http.StatusBadRequest, "url must be absolute")
		return
	}

	resp, err := h.broker.Perform(r.Context(), model.BrokerRequest{
		URL:   target,
		Scope: model.Scope(r.URL.Query().Get("scope")),
		User:  h.userFromRequest(r),
	})
	if err != nil {
		var nak *application.NoAvailableKeyError
		if errors.As(err, &nak) {
			w.Header().Set(model.HeaderKeyAttempts, model.FormatAttempts(nak.Attempts))
		}
		h.writeServiceError(w, "debug upstream call failed", err)
		return
	}

	for k, v := range resp.DebugHeaders() {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// userFromRequest builds the caller identity from the trusted headers. The
// raw key header is ignored unless session keys are allowed.
func (h *Handler) userFromRequest(r *http.Request) *model.UserContext {
	u := &model.UserContext{
		PlayerID:  headerID(r, HeaderPlayerID),
		FactionID: headerID(r, HeaderFactionID),
	}
	if h.opts.AllowSessionKey {
		u.APIKey = strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	}
	return u
}

// writeServiceError maps an application error to a status code. Server-side
// failures are logged with args.
func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error, args ...any) {
	var (
		httpErr *application.UpstreamHTTPError
		apiErr  *application.UpstreamAPIError
	)

	switch {
	case errors.Is(err, application.ErrInvalidCredential):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, driven.ErrCredentialNotFound):
		writeError(w, http.StatusNotFound, "credential not found")
		return
	case errors.Is(err, context.Canceled):
		return
	}

	h.logger.Error(msg, append(args, "error", err)...)

	switch {
	case errors.Is(err, application.ErrNoAvailableKey):
		writeError(w, http.StatusServiceUnavailable, "no upstream key available")
	case errors.As(err, &httpErr):
		writeError(w, http.StatusBadGateway, "upstream returned HTTP "+strconv.Itoa(httpErr.Status))
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, "upstream error "+strconv.Itoa(apiErr.Code)+": "+apiErr.Message)
	case errors.Is(err, driven.ErrConfigMissing):
		writeError(w, http.StatusInternalServerError, "credential passphrase not configured")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathID parses the {id} path value, writing a 400 when it is not a positive
// integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func headerID(r *http.Request, name string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(name)), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// isValidStat accepts lowercase stat identifiers.
func isValidStat(stat string) bool {
	if stat == "" || len(stat) > 64 {
		return false
	}
	for _, ch := range stat {
		if !(ch >= 'a' && ch <= 'z') && !(ch >= '0' && ch <= '9') && ch != '_' {
			return false
		}
	}
	return true
}
