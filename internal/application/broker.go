package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
	"github.com/sftdash/tornpanel/internal/telemetry"
)

// KeyPlacement selects where the credential secret goes on the wire.
type KeyPlacement string

const (
	KeyPlacementQuery  KeyPlacement = "query"
	KeyPlacementHeader KeyPlacement = "header"
)

const (
	// DefaultComment attributes requests in the upstream's access logs.
	DefaultComment = "SFT"

	// DefaultCallTimeout bounds a single upstream call.
	DefaultCallTimeout = 10 * time.Second

	// maxResponseBytes guards against unbounded upstream bodies.
	maxResponseBytes = 16 << 20
)

// BrokerConfig holds the broker's tunables.
type BrokerConfig struct {
	// Passphrase unlocks stored credential secrets. Required.
	Passphrase  string
	Comment     string
	Placement   KeyPlacement
	CallTimeout time.Duration
	// SessionKeyFirst tries a caller-supplied raw key before the pool rather
	// than after it.
	SessionKeyFirst bool
	Now             func() time.Time
}

// Broker routes upstream requests through the credential pool, rotating past
// rate-limited, undecryptable and quota-rejected credentials.
type Broker struct {
	store   driven.CredentialStore
	policy  *CandidatePolicy
	limiter *RateLimiter
	codec   driven.SecretCodec
	client  driven.HTTPDoer
	metrics *telemetry.Metrics
	cfg     BrokerConfig
}

// NewBroker creates a broker. It returns driven.ErrConfigMissing when no
// passphrase is configured. metrics may be nil.
func NewBroker(
	store driven.CredentialStore,
	limiter *RateLimiter,
	codec driven.SecretCodec,
	client driven.HTTPDoer,
	metrics *telemetry.Metrics,
	cfg BrokerConfig,
) (*Broker, error) {
	if cfg.Passphrase == "" {
		return nil, driven.ErrConfigMissing
	}
	if cfg.Comment == "" {
		cfg.Comment = DefaultComment
	}
	if cfg.Placement == "" {
		cfg.Placement = KeyPlacementQuery
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Broker{
		store:   store,
		policy:  NewCandidatePolicy(store),
		limiter: limiter,
		codec:   codec,
		client:  client,
		metrics: metrics,
		cfg:     cfg,
	}, nil
}

// candidate is one credential or raw session key being tried.
type candidate struct {
	id     *int64
	source model.KeySource
	blob   string
	raw    string
}

// attemptResult is what one candidate produced. A nil resp means rotate.
type attemptResult struct {
	resp    *model.UpstreamResponse
	outcome string
}

// Perform issues the request with the first candidate that yields a
// definitive response. Transient failures rotate to the next candidate; when
// none remain it returns a *NoAvailableKeyError. It returns ctx.Err() as soon
// as the caller's context is done.
func (b *Broker) Perform(ctx context.Context, req model.BrokerRequest) (*model.UpstreamResponse, error) {
	if b.cfg.Passphrase == "" {
		return nil, driven.ErrConfigMissing
	}

	scope, factionID := b.resolve(req)

	var session *candidate
	if req.User != nil && req.User.APIKey != "" {
		session = &candidate{source: model.KeySourceSession, raw: req.User.APIKey}
	}

	var (
		attempts  []model.Attempt
		lookupErr error
	)

	try := func(c candidate) (*model.UpstreamResponse, error) {
		res, err := b.attempt(ctx, req.URL, c)
		if err != nil {
			return nil, err
		}
		b.metrics.BrokerAttempt(res.outcome)
		attempts = append(attempts, model.Attempt{CredentialID: c.id, Source: c.source, Outcome: res.outcome})
		if res.resp == nil {
			return nil, nil
		}
		res.resp.Attempts = attempts
		return res.resp, nil
	}

	if session != nil && b.cfg.SessionKeyFirst {
		if resp, err := try(*session); resp != nil || err != nil {
			return b.finish(resp, err)
		}
	}

	seen := make(map[int64]bool)
	for cred, err := range b.policy.Candidates(ctx, scope, req.User, factionID) {
		if err != nil {
			slog.Warn("credential lookup failed", "scope", scope, "error", err)
			lookupErr = err
			continue
		}
		if seen[cred.ID] {
			continue
		}
		seen[cred.ID] = true

		id := cred.ID
		if resp, err := try(candidate{id: &id, source: model.KeySourceDB, blob: cred.Secret}); resp != nil || err != nil {
			return b.finish(resp, err)
		}
	}

	if session != nil && !b.cfg.SessionKeyFirst {
		if resp, err := try(*session); resp != nil || err != nil {
			return b.finish(resp, err)
		}
	}

	b.metrics.BrokerRequest("no_available_key")
	slog.Warn("no available key", "scope", scope, "attempts", model.FormatAttempts(attempts))
	return nil, &NoAvailableKeyError{Attempts: attempts, Err: lookupErr}
}

func (b *Broker) finish(resp *model.UpstreamResponse, err error) (*model.UpstreamResponse, error) {
	if err != nil {
		b.metrics.BrokerRequest("error")
		return nil, err
	}
	if resp.OK() {
		b.metrics.BrokerRequest("ok")
	} else {
		b.metrics.BrokerRequest("definitive")
	}
	return resp, nil
}

func (b *Broker) resolve(req model.BrokerRequest) (model.Scope, *int64) {
	scope := req.Scope
	if scope == "" || scope == model.ScopeAuto {
		scope = ResolveScope(req.URL)
	}
	factionID := req.FactionID
	if factionID == nil && req.User != nil && req.User.FactionID > 0 {
		fid := req.User.FactionID
		factionID = &fid
	}
	return scope, factionID
}

// attempt runs one candidate through gate, decrypt, call, record and
// classify. The returned error is non-nil only for failures that must stop
// the rotation.
func (b *Broker) attempt(ctx context.Context, rawURL string, c candidate) (attemptResult, error) {
	if !b.allow(ctx, c) {
		return attemptResult{outcome: "rate_skip"}, nil
	}

	secret := c.raw
	if c.source == model.KeySourceDB {
		var err error
		secret, err = b.codec.Decrypt(c.blob, b.cfg.Passphrase)
		if errors.Is(err, driven.ErrConfigMissing) {
			return attemptResult{}, err
		}
		if err != nil {
			slog.Warn("credential decrypt failed", "credential_id", *c.id)
			return attemptResult{outcome: "decrypt_failed"}, nil
		}
	}

	status, header, body, err := b.call(ctx, rawURL, secret)
	b.recordUse(ctx, c, secret)
	if err != nil {
		if ctx.Err() != nil {
			return attemptResult{}, fmt.Errorf("perform upstream request: %w", ctx.Err())
		}
		slog.Debug("upstream call failed", "source", c.source, "error", redact(err))
		return attemptResult{outcome: "transport_error"}, nil
	}

	outcome, label := Classify(status, body)
	if outcome == OutcomeTransient {
		return attemptResult{outcome: label}, nil
	}

	return attemptResult{
		outcome: label,
		resp: &model.UpstreamResponse{
			StatusCode:   status,
			Header:       header,
			Body:         body,
			CredentialID: c.id,
			Source:       c.source,
		},
	}, nil
}

func (b *Broker) allow(ctx context.Context, c candidate) bool {
	if b.limiter == nil {
		return true
	}
	if c.source == model.KeySourceSession {
		return b.limiter.AllowSession(ctx, c.raw)
	}
	return b.limiter.Allow(ctx, *c.id)
}

func (b *Broker) recordUse(ctx context.Context, c candidate, secret string) {
	if b.limiter != nil {
		var err error
		if c.source == model.KeySourceSession {
			err = b.limiter.RecordSession(ctx, secret)
		} else {
			err = b.limiter.Record(ctx, *c.id)
		}
		if err != nil {
			slog.Warn("failed to record key usage", "source", c.source, "error", err)
		}
	}
	if c.id == nil {
		return
	}
	if err := b.store.TouchLastUsed(ctx, *c.id, b.cfg.Now()); err != nil {
		slog.Warn("failed to stamp credential last use", "credential_id", *c.id, "error", err)
	}
}

// call issues one HTTP request carrying secret.
func (b *Broker) call(ctx context.Context, rawURL, secret string) (int, http.Header, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("parse upstream url: %w", err)
	}
	q := u.Query()
	if b.cfg.Placement == KeyPlacementQuery {
		q.Set("key", secret)
	}
	if q.Get("comment") == "" {
		q.Set("comment", b.cfg.Comment)
	}
	u.RawQuery = q.Encode()

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.cfg.Placement == KeyPlacementHeader {
		req.Header.Set("Authorization", "ApiKey "+secret)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	b.metrics.UpstreamLatency(time.Since(start))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read upstream body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// redact drops the request URL from transport errors; under query
// placement it carries the key.
func redact(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Op + " upstream: " + uerr.Err.Error()
	}
	return err.Error()
}

// FetchJSON performs the request and returns the body of a successful JSON
// response. A non-2xx status yields *UpstreamHTTPError; an error object in
// the body yields *UpstreamAPIError.
func (b *Broker) FetchJSON(ctx context.Context, req model.BrokerRequest) (json.RawMessage, error) {
	resp, err := b.Perform(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &UpstreamHTTPError{Status: resp.StatusCode}
	}
	if apiErr := parseAPIError(resp.Body); apiErr != nil {
		return nil, apiErr
	}
	return json.RawMessage(resp.Body), nil
}

// Inspect walks the candidates for a request without calling upstream and
// reports, per candidate, whether the rate gate would admit it and whether
// its secret decrypts.
func (b *Broker) Inspect(ctx context.Context, scope model.Scope, user *model.UserContext, factionID *int64) []model.CandidateProbe {
	probes := []model.CandidateProbe{}
	_, fid := b.resolve(model.BrokerRequest{Scope: scope, User: user, FactionID: factionID})

	session := func() {
		if user == nil || user.APIKey == "" {
			return
		}
		canUse := b.allow(ctx, candidate{source: model.KeySourceSession, raw: user.APIKey})
		probes = append(probes, model.CandidateProbe{Source: model.KeySourceSession, CanUse: &canUse})
	}

	if b.cfg.SessionKeyFirst {
		session()
	}

	seen := make(map[int64]bool)
	for cred, err := range b.policy.Candidates(ctx, scope, user, fid) {
		if err != nil {
			probes = append(probes, model.CandidateProbe{Source: model.KeySourceDB, Note: "lookup failed: " + err.Error()})
			continue
		}
		if seen[cred.ID] {
			continue
		}
		seen[cred.ID] = true

		id := cred.ID
		canUse := b.allow(ctx, candidate{id: &id, source: model.KeySourceDB})
		_, decErr := b.codec.Decrypt(cred.Secret, b.cfg.Passphrase)
		decryptOK := decErr == nil
		probe := model.CandidateProbe{Source: model.KeySourceDB, CredentialID: &id, CanUse: &canUse, DecryptOK: &decryptOK}
		if !decryptOK {
			probe.Note = "decrypt failed"
		}
		probes = append(probes, probe)
	}

	if !b.cfg.SessionKeyFirst {
		session()
	}
	if len(probes) == 0 {
		probes = append(probes, model.CandidateProbe{Source: model.KeySourceDB, Note: "no candidates"})
	}
	return probes
}
