package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftdash/tornpanel/internal/application"
	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

func TestCredentialService_RegisterSealsKey(t *testing.T) {
	store := &mockCredentialStore{}
	svc := application.NewCredentialService(store, fakeCodec{}, testPassphrase)

	id, err := svc.Register(context.Background(), application.NewCredential{
		APIKey:           "  plain-key ",
		Owner:            model.OwnerFaction,
		FactionID:        ptr(int64(100)),
		Shareable:        true,
		HasFactionAccess: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), id)
	require.Len(t, store.created, 1)
	c := store.created[0]
	assert.Equal(t, sealed("plain-key"), c.Secret)
	assert.Equal(t, model.OwnerFaction, c.Owner)
	assert.True(t, c.Shareable)
	assert.True(t, c.HasFactionAccess)
}

func TestCredentialService_RegisterDefaultsToUnowned(t *testing.T) {
	store := &mockCredentialStore{}
	svc := application.NewCredentialService(store, fakeCodec{}, testPassphrase)

	_, err := svc.Register(context.Background(), application.NewCredential{APIKey: "k", Shareable: true})
	require.NoError(t, err)

	assert.Equal(t, model.OwnerUnowned, store.created[0].Owner)
}

func TestCredentialService_RegisterValidates(t *testing.T) {
	tests := []struct {
		name string
		in   application.NewCredential
	}{
		{"empty key", application.NewCredential{APIKey: " "}},
		{"user without player", application.NewCredential{APIKey: "k", Owner: model.OwnerUser}},
		{"faction without id", application.NewCredential{APIKey: "k", Owner: model.OwnerFaction}},
		{"faction access without id", application.NewCredential{APIKey: "k", HasFactionAccess: true}},
		{"unknown owner", application.NewCredential{APIKey: "k", Owner: "alliance"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockCredentialStore{}
			svc := application.NewCredentialService(store, fakeCodec{}, testPassphrase)

			_, err := svc.Register(context.Background(), tt.in)

			assert.ErrorIs(t, err, application.ErrInvalidCredential)
			assert.Empty(t, store.created)
		})
	}
}

func TestCredentialService_RegisterNeedsPassphrase(t *testing.T) {
	svc := application.NewCredentialService(&mockCredentialStore{}, fakeCodec{}, "")

	_, err := svc.Register(context.Background(), application.NewCredential{APIKey: "k"})

	assert.ErrorIs(t, err, driven.ErrConfigMissing)
}

func TestCredentialService_RevokeAndList(t *testing.T) {
	store := &mockCredentialStore{stored: []model.Credential{{ID: 1, Secret: sealed("k")}}}
	svc := application.NewCredentialService(store, fakeCodec{}, testPassphrase)

	require.NoError(t, svc.Revoke(context.Background(), 1))
	assert.Equal(t, []int64{1}, store.revoked)

	creds, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Empty(t, creds[0].Secret)
}
