// Package security holds the credential, audit and webhook-verification
// domain model. It depends on nothing outside the standard library; the
// cipher, the database and the HTTP surface plug in through the ports
// declared here.
package security

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("security: credential not found")
	ErrCredentialExpired  = errors.New("security: credential expired")
	ErrCredentialRevoked  = errors.New("security: credential revoked")
	ErrVaultKeyMissing    = errors.New("security: vault key not configured")
	ErrCiphertextCorrupt  = errors.New("security: ciphertext corrupt or wrong key")
)

// Credential is a stored platform connection: who connected what, plus the
// secret material needed to talk to the platform. Secrets travel in this
// struct only in decrypted form; at rest they exist solely as vault
// ciphertext.
type Credential struct {
	ID         string
	UserID     string
	Platform   string
	PlatformID string
	Name       string

	// Secrets is the platform credential map (api_key, shop domain,
	// bot token and so on), decrypted.
	Secrets map[string]string

	// WebhookSecret signs inbound callbacks for this connection.
	WebhookSecret string

	Active    bool
	ExpiresAt *time.Time
	LastUsed  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the credential has an expiry in the past.
// A nil ExpiresAt never expires.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Usable reports whether the credential may authenticate a dispatch right
// now, returning the precise reason when it may not.
func (c *Credential) Usable(now time.Time) error {
	if !c.Active {
		return fmt.Errorf("%w: %s", ErrCredentialRevoked, c.PlatformID)
	}
	if c.Expired(now) {
		return fmt.Errorf("%w: %s", ErrCredentialExpired, c.PlatformID)
	}
	return nil
}

// Touch records a successful use.
func (c *Credential) Touch(now time.Time) {
	t := now
	c.LastUsed = &t
	c.UpdatedAt = now
}

// Vault encrypts and decrypts credential maps. Implementations must fail
// closed: a ciphertext that does not authenticate decrypts to an error,
// never to partial plaintext.
type Vault interface {
	Encrypt(secrets map[string]string) ([]byte, error)
	Decrypt(ciphertext []byte) (map[string]string, error)
}

// CredentialRepository persists credentials with secrets already in
// ciphertext form. Implementations never see plaintext.
type CredentialRepository interface {
	Save(ctx context.Context, cred *Credential, ciphertext []byte) error
	// Find returns the credential and its ciphertext; the caller decrypts.
	Find(ctx context.Context, userID, platformID string) (*Credential, []byte, error)
	FindByUser(ctx context.Context, userID string) ([]*Credential, error)
	// FindByPlatform returns every active credential for a platform,
	// used to route webhooks to the owning principal.
	FindByPlatform(ctx context.Context, platform string) ([]*Credential, error)
	Deactivate(ctx context.Context, userID, platformID string) error
	Delete(ctx context.Context, userID, platformID string) error
	// ExpireStale deactivates credentials whose expiry passed before now
	// and returns how many changed.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
