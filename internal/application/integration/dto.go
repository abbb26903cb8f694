package integration

import (
	"time"

	"github.com/omnihub/backend/internal/domain/integration"
)

// ConnectInput carries everything needed to establish a platform connection.
type ConnectInput struct {
	UserID     string
	Platform   integration.Platform
	PlatformID string
	Name       string
	// Secrets is the plaintext credential map. It is validated, proven
	// against the platform and vaulted; it is never stored or logged as-is.
	Secrets   map[string]string
	ExpiresAt *time.Time
	SourceIP  string
}

// ConnectResult reports a successful connection.
type ConnectResult struct {
	CredentialID  string               `json:"credential_id"`
	Platform      integration.Platform `json:"platform"`
	PlatformID    string               `json:"platform_id"`
	WebhookSecret string               `json:"webhook_secret"`
	CreatedAt     time.Time            `json:"created_at"`
}

// WebhookInput is one inbound platform callback, already read off the wire.
type WebhookInput struct {
	Platform  integration.Platform
	UserID    string
	Body      []byte
	Signature string
	SourceIP  string
}

// WebhookResult reports what happened to an accepted webhook.
type WebhookResult struct {
	Accepted bool `json:"accepted"`
	// Verified is false when the platform has no signature scheme or the
	// connection has no webhook secret, in which case the payload was
	// accepted without verification.
	Verified bool `json:"verified"`
	Messages int  `json:"messages"`
}

// DispatchStats aggregates fan-out outcomes since process start.
type DispatchStats struct {
	Dispatches         int64     `json:"dispatches"`
	PlatformsSucceeded int64     `json:"platforms_succeeded"`
	PlatformsFailed    int64     `json:"platforms_failed"`
	WebhooksAccepted   int64     `json:"webhooks_accepted"`
	WebhooksRejected   int64     `json:"webhooks_rejected"`
	LastDispatch       time.Time `json:"last_dispatch"`
}

// ConnectionView is a safe listing of one stored connection. It never
// carries secret material.
type ConnectionView struct {
	CredentialID string     `json:"credential_id"`
	Platform     string     `json:"platform"`
	PlatformID   string     `json:"platform_id"`
	Name         string     `json:"name"`
	Active       bool       `json:"active"`
	Registered   bool       `json:"registered"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
