package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
)

var hubspotKey = model.CacheKey{TenantID: "acme", Domain: model.DomainCRM, Vendor: "hubspot"}

func TestCredentialRepo_SetAndResolve(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "pat-123", BaseURL: "https://eu.hubapi.test"}))

	got, err := repo.Resolve(ctx, "acme", model.DomainCRM, "hubspot")
	require.NoError(t, err)
	assert.Equal(t, model.APIKeyCredentials{Token: "pat-123", BaseURL: "https://eu.hubapi.test"}, got)
}

func TestCredentialRepo_ResolveOAuth(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())
	ctx := context.Background()
	key := model.CacheKey{TenantID: "acme", Domain: model.DomainCalendar, Vendor: "google_calendar"}

	require.NoError(t, repo.Set(ctx, key, model.OAuth2Credentials{AccessToken: "ya29", RefreshToken: "1//r"}))

	got, err := repo.Resolve(ctx, key.TenantID, key.Domain, key.Vendor)
	require.NoError(t, err)
	assert.Equal(t, model.OAuth2Credentials{AccessToken: "ya29", RefreshToken: "1//r"}, got)
}

func TestCredentialRepo_ResolveMissing(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())

	_, err := repo.Resolve(context.Background(), "acme", model.DomainCRM, "hubspot")

	assert.ErrorIs(t, err, driven.ErrNoCredentials)
}

func TestCredentialRepo_TenantsAreIsolated(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "acme-token"}))

	_, err := repo.Resolve(ctx, "globex", model.DomainCRM, "hubspot")
	assert.ErrorIs(t, err, driven.ErrNoCredentials)
}

func TestCredentialRepo_UpsertOverwrites(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "old"}))
	require.NoError(t, repo.Set(ctx, hubspotKey, model.OAuth2Credentials{AccessToken: "new"}))

	got, err := repo.Resolve(ctx, "acme", model.DomainCRM, "hubspot")
	require.NoError(t, err)
	assert.Equal(t, model.OAuth2Credentials{AccessToken: "new"}, got)

	list, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.AuthModeOAuth2, list[0].AuthMode)
}

func TestCredentialRepo_SetRejectsInvalid(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())

	err := repo.Set(context.Background(), hubspotKey, model.APIKeyCredentials{})

	require.Error(t, err)
}

func TestCredentialRepo_List(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "a"}))
	require.NoError(t, repo.Set(ctx, model.CacheKey{TenantID: "acme", Domain: model.DomainEmail, Vendor: "sendgrid"}, model.APIKeyCredentials{Token: "b"}))
	require.NoError(t, repo.Set(ctx, model.CacheKey{TenantID: "globex", Domain: model.DomainCRM, Vendor: "hubspot"}, model.APIKeyCredentials{Token: "c"}))

	acme, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, model.DomainCRM, acme[0].Domain)
	assert.Equal(t, "sendgrid", acme[1].Vendor)
	assert.False(t, acme[0].UpdatedAt.IsZero())

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCredentialRepo_Delete(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), testKey())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "a"}))
	require.NoError(t, repo.Delete(ctx, hubspotKey))
	require.NoError(t, repo.Delete(ctx, hubspotKey))

	_, err := repo.Resolve(ctx, "acme", model.DomainCRM, "hubspot")
	assert.ErrorIs(t, err, driven.ErrNoCredentials)
}

func TestCredentialRepo_ValueIsEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "super-secret"}))

	var stored string
	require.NoError(t, db.Reader.QueryRowContext(ctx, `SELECT value FROM credentials`).Scan(&stored))
	assert.NotContains(t, stored, "super-secret")
}

func TestCredentialRepo_WrongKeyFailsToDecrypt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, NewCredentialRepo(db, testKey()).Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "a"}))

	other := make([]byte, 32)
	_, err := NewCredentialRepo(db, other).Resolve(ctx, "acme", model.DomainCRM, "hubspot")

	require.Error(t, err)
	assert.NotErrorIs(t, err, driven.ErrNoCredentials)
}

func TestCredentialRepo_NoKey(t *testing.T) {
	repo := NewCredentialRepo(setupTestDB(t), nil)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Set(ctx, hubspotKey, model.APIKeyCredentials{Token: "a"}), driven.ErrEncryptionKeyNotSet)
	_, err := repo.Resolve(ctx, "acme", model.DomainCRM, "hubspot")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
	_, err = repo.List(ctx, "")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}
