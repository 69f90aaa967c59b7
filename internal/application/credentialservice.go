package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// NewCredential is a plaintext key to add to the pool.
type NewCredential struct {
	APIKey           string
	Owner            model.OwnerClass
	PlayerID         *int64
	FactionID        *int64
	Shareable        bool
	HasFactionAccess bool
}

// CredentialService adds and revokes pool credentials. Secrets are sealed
// before they reach the store.
type CredentialService struct {
	store      driven.CredentialStore
	codec      driven.SecretCodec
	passphrase string
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(store driven.CredentialStore, codec driven.SecretCodec, passphrase string) *CredentialService {
	return &CredentialService{store: store, codec: codec, passphrase: passphrase}
}

// Register encrypts the key and stores it, returning the new credential id.
func (s *CredentialService) Register(ctx context.Context, in NewCredential) (int64, error) {
	if s.passphrase == "" {
		return 0, driven.ErrConfigMissing
	}

	key := strings.TrimSpace(in.APIKey)
	if key == "" {
		return 0, fmt.Errorf("%w: api key is required", ErrInvalidCredential)
	}
	switch in.Owner {
	case "":
		in.Owner = model.OwnerUnowned
	case model.OwnerUser:
		if in.PlayerID == nil {
			return 0, fmt.Errorf("%w: user credential needs a player id", ErrInvalidCredential)
		}
	case model.OwnerFaction:
		if in.FactionID == nil {
			return 0, fmt.Errorf("%w: faction credential needs a faction id", ErrInvalidCredential)
		}
	case model.OwnerUnowned:
	default:
		return 0, fmt.Errorf("%w: unknown owner %q", ErrInvalidCredential, in.Owner)
	}
	if in.HasFactionAccess && in.FactionID == nil {
		return 0, fmt.Errorf("%w: faction access needs a faction id", ErrInvalidCredential)
	}

	blob, err := s.codec.Encrypt(key, s.passphrase)
	if err != nil {
		return 0, fmt.Errorf("seal credential: %w", err)
	}

	id, err := s.store.Create(ctx, model.Credential{
		Secret:           blob,
		Owner:            in.Owner,
		PlayerID:         in.PlayerID,
		FactionID:        in.FactionID,
		Shareable:        in.Shareable,
		HasFactionAccess: in.HasFactionAccess,
	})
	if err != nil {
		return 0, fmt.Errorf("store credential: %w", err)
	}

	slog.Info("credential registered", "credential_id", id, "owner", in.Owner)
	return id, nil
}

// Revoke soft-deletes a credential. It returns driven.ErrCredentialNotFound
// for an unknown id.
func (s *CredentialService) Revoke(ctx context.Context, id int64) error {
	if err := s.store.Revoke(ctx, id); err != nil {
		return fmt.Errorf("revoke credential %d: %w", id, err)
	}
	slog.Info("credential revoked", "credential_id", id)
	return nil
}

// List returns every credential without its secret.
func (s *CredentialService) List(ctx context.Context) ([]model.Credential, error) {
	creds, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	for i := range creds {
		creds[i].Secret = ""
	}
	return creds, nil
}
