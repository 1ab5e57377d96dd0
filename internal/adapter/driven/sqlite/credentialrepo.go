package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Credentials are marshaled to JSON and encrypted with AES-256-GCM before
// write, and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a CredentialRepo. key must be 32 bytes, or nil to
// disable credential storage (every operation returns ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Set stores or replaces the credentials for key.
func (r *CredentialRepo) Set(ctx context.Context, key model.CacheKey, creds model.Credentials) error {
	if creds == nil {
		return errors.New("set credential: nil credentials")
	}
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("set credential %s: %w", key, err)
	}
	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credential %s: %w", key, err)
	}
	encrypted, err := r.encrypt(payload)
	if err != nil {
		return err
	}

	const query = `INSERT INTO credentials (tenant_id, domain, vendor, auth_mode, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, domain, vendor) DO UPDATE SET
			auth_mode = excluded.auth_mode,
			value = excluded.value,
			updated_at = excluded.updated_at`
	_, err = r.db.Writer.ExecContext(ctx, query,
		key.TenantID, string(key.Domain), key.Vendor, string(creds.AuthMode()), encrypted, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set credential %s: %w", key, err)
	}
	return nil
}

// Resolve returns the decrypted credentials, or ErrNoCredentials when the
// tenant has not stored any for the vendor.
func (r *CredentialRepo) Resolve(ctx context.Context, tenantID string, domain model.Domain, vendor string) (model.Credentials, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT auth_mode, value FROM credentials WHERE tenant_id = ? AND domain = ? AND vendor = ?`
	var mode, encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, tenantID, string(domain), vendor).Scan(&mode, &encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s/%s: %w", tenantID, domain, vendor, err)
	}

	payload, err := r.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %s/%s/%s: %w", tenantID, domain, vendor, err)
	}
	return decodeCredentials(model.AuthMode(mode), payload)
}

func decodeCredentials(mode model.AuthMode, payload []byte) (model.Credentials, error) {
	switch mode {
	case model.AuthModeAPIKey:
		var c model.APIKeyCredentials
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("decode api key credential: %w", err)
		}
		return c, nil
	case model.AuthModeOAuth2:
		var c model.OAuth2Credentials
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("decode oauth2 credential: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("decode credential: unknown auth mode %q", mode)
}

// List returns metadata for the stored credentials of tenantID, or of every
// tenant when tenantID is empty. Secrets are not decrypted.
func (r *CredentialRepo) List(ctx context.Context, tenantID string) ([]driven.StoredCredential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT tenant_id, domain, vendor, auth_mode, updated_at FROM credentials
		WHERE ? = '' OR tenant_id = ?
		ORDER BY tenant_id, domain, vendor`
	rows, err := r.db.Reader.QueryContext(ctx, query, tenantID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []driven.StoredCredential
	for rows.Next() {
		var sc driven.StoredCredential
		var domain, mode, updatedAt string
		if err := rows.Scan(&sc.TenantID, &domain, &sc.Vendor, &mode, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		sc.Domain = model.Domain(domain)
		sc.AuthMode = model.AuthMode(mode)
		sc.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at for credential %s/%s/%s: %w", sc.TenantID, domain, sc.Vendor, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// Delete removes the credentials for key.
func (r *CredentialRepo) Delete(ctx context.Context, key model.CacheKey) error {
	const query = `DELETE FROM credentials WHERE tenant_id = ? AND domain = ? AND vendor = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, key.TenantID, string(key.Domain), key.Vendor); err != nil {
		return fmt.Errorf("delete credential %s: %w", key, err)
	}
	return nil
}

// encrypt returns base64(nonce || ciphertext || tag).
func (r *CredentialRepo) encrypt(plaintext []byte) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}
	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

func (r *CredentialRepo) decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	gcm, err := r.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}
	return plaintext, nil
}

func (r *CredentialRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
