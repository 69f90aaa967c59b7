package application

import (
	"context"
	"iter"
	"strings"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// fallbackFactionKeys caps the direct faction lookup used when the faction
// scope finds neither an owned nor a pooled credential.
const fallbackFactionKeys = 5

// finder looks up zero or more candidates. Finders run one at a time, only
// when the consumer asks for more.
type finder func(ctx context.Context) ([]model.Credential, error)

// CandidatePolicy orders the credentials eligible for a request.
type CandidatePolicy struct {
	store driven.CredentialStore
}

// NewCandidatePolicy creates a policy backed by the credential store.
func NewCandidatePolicy(store driven.CredentialStore) *CandidatePolicy {
	return &CandidatePolicy{store: store}
}

// Candidates yields credentials in priority order for the scope. The sequence
// is lazy: a consumer that stops after the first credential triggers a single
// store lookup. A lookup error is yielded with a zero credential; a consumer
// that keeps going moves on to the next lookup.
func (p *CandidatePolicy) Candidates(ctx context.Context, scope model.Scope, user *model.UserContext, factionID *int64) iter.Seq2[model.Credential, error] {
	var playerID int64
	if user != nil {
		playerID = user.PlayerID
	}
	var fid int64
	if factionID != nil {
		fid = *factionID
	}

	var finders []finder
	switch {
	case scope == model.ScopeUser && playerID > 0:
		finders = append(finders, p.userCredential(playerID), p.publicPool())
		if fid > 0 {
			finders = append(finders, p.factionPool(fid))
		}
	case scope == model.ScopeFaction && fid > 0:
		finders = append(finders, p.factionCredential(fid), p.factionPool(fid))
	default:
		finders = append(finders, p.publicPool())
		if fid > 0 {
			finders = append(finders, p.factionPool(fid), p.factionCredential(fid))
		}
		if playerID > 0 {
			finders = append(finders, p.userCredential(playerID))
		}
	}

	fallback := scope == model.ScopeFaction && fid > 0

	return func(yield func(model.Credential, error) bool) {
		found := false
		for _, find := range finders {
			creds, err := find(ctx)
			if err != nil {
				if !yield(model.Credential{}, err) {
					return
				}
				continue
			}
			for _, c := range creds {
				found = true
				if !yield(c, nil) {
					return
				}
			}
		}

		if !fallback || found {
			return
		}
		creds, err := p.store.ListFactionCredentials(ctx, fid, fallbackFactionKeys)
		if err != nil {
			yield(model.Credential{}, err)
			return
		}
		for _, c := range creds {
			if !usableBy(c, playerID) {
				continue
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// usableBy reports whether a credential may serve a request on behalf of the
// player. A private user key serves only its owner.
func usableBy(c model.Credential, playerID int64) bool {
	if c.Shareable || c.Owner == model.OwnerFaction {
		return true
	}
	return c.Owner == model.OwnerUser && c.PlayerID != nil && playerID > 0 && *c.PlayerID == playerID
}

func (p *CandidatePolicy) userCredential(playerID int64) finder {
	return func(ctx context.Context) ([]model.Credential, error) {
		return one(p.store.FindUserCredential(ctx, playerID))
	}
}

func (p *CandidatePolicy) factionCredential(factionID int64) finder {
	return func(ctx context.Context) ([]model.Credential, error) {
		return one(p.store.FindFactionCredential(ctx, factionID))
	}
}

func (p *CandidatePolicy) publicPool() finder {
	return func(ctx context.Context) ([]model.Credential, error) {
		return one(p.store.FindSharedPool(ctx, model.PoolFilter{}))
	}
}

func (p *CandidatePolicy) factionPool(factionID int64) finder {
	return func(ctx context.Context) ([]model.Credential, error) {
		return one(p.store.FindSharedPool(ctx, model.PoolFilter{FactionAccess: true, FactionID: &factionID}))
	}
}

func one(c *model.Credential, err error) ([]model.Credential, error) {
	if err != nil || c == nil {
		return nil, err
	}
	return []model.Credential{*c}, nil
}

// ResolveScope infers the permission scope a URL needs. Matching is
// case-insensitive.
func ResolveScope(rawURL string) model.Scope {
	u := strings.ToLower(rawURL)
	switch {
	case strings.Contains(u, "/user/") &&
		(strings.Contains(u, "selections=profile") ||
			strings.Contains(u, "selections=log") ||
			strings.Contains(u, "/v2/user/")):
		return model.ScopeUser
	case strings.Contains(u, "/faction/"):
		return model.ScopeFaction
	default:
		return model.ScopeBasic
	}
}
