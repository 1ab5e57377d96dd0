package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

// ErrNoCredentials is returned by CredentialResolver when nothing is stored
// for the requested tenant, domain and vendor.
var ErrNoCredentials = errors.New("no credentials stored")

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// VENDORBRIDGE_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set VENDORBRIDGE_SECRET_KEY")

// CredentialResolver supplies the credentials a provider instance is built with.
type CredentialResolver interface {
	// Resolve returns ErrNoCredentials if the tenant has not configured the vendor.
	Resolve(ctx context.Context, tenantID string, domain model.Domain, vendor string) (model.Credentials, error)
}

// StoredCredential describes a stored credential without exposing its secret.
type StoredCredential struct {
	TenantID  string
	Domain    model.Domain
	Vendor    string
	AuthMode  model.AuthMode
	UpdatedAt time.Time
}

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption; this interface operates on
// plaintext values at the domain boundary.
type CredentialStore interface {
	CredentialResolver

	// Set stores or replaces the credentials for the key. Returns
	// ErrEncryptionKeyNotSet if the adapter was constructed without a key.
	Set(ctx context.Context, key model.CacheKey, creds model.Credentials) error

	// List returns metadata for every credential stored for tenantID, or for
	// all tenants when tenantID is empty.
	List(ctx context.Context, tenantID string) ([]StoredCredential, error)

	// Delete removes the credentials for the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key model.CacheKey) error
}
