package driven

import (
	"context"
	"errors"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

// ErrConfigMissing is returned when no passphrase for credential secrets has
// been configured (TORNPANEL_KMS_MASTER). No upstream call is attempted.
var ErrConfigMissing = errors.New("credential passphrase not configured: set TORNPANEL_KMS_MASTER")

// ErrCredentialNotFound is returned by Revoke for an unknown credential id.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore defines the driven port for the encrypted credential pool.
// Secrets cross this boundary still encrypted; the broker decrypts on use.
// Every finder skips revoked credentials and returns (nil, nil) when nothing
// matches.
type CredentialStore interface {
	// FindUserCredential returns the least recently used credential owned by
	// the given player.
	FindUserCredential(ctx context.Context, playerID int64) (*model.Credential, error)

	// FindFactionCredential returns the least recently used credential owned
	// by the given faction.
	FindFactionCredential(ctx context.Context, factionID int64) (*model.Credential, error)

	// FindSharedPool returns the least recently used shareable credential
	// matching the filter.
	FindSharedPool(ctx context.Context, filter model.PoolFilter) (*model.Credential, error)

	// ListFactionCredentials returns up to limit faction-capable credentials
	// tied to the faction, most recently used first. Only shareable or
	// faction-owned credentials qualify.
	ListFactionCredentials(ctx context.Context, factionID int64, limit int) ([]model.Credential, error)

	// ListFactionIDs returns the distinct factions that hold a usable
	// faction-capable credential that is shareable or faction-owned.
	ListFactionIDs(ctx context.Context) ([]int64, error)

	// Create stores a new credential and returns its id.
	Create(ctx context.Context, cred model.Credential) (int64, error)

	// Revoke soft-deletes a credential.
	Revoke(ctx context.Context, id int64) error

	// TouchLastUsed stamps last_used_at.
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error

	// List returns every credential, revoked ones included, ordered by id.
	List(ctx context.Context) ([]model.Credential, error)
}
