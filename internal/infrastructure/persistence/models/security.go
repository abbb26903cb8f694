package models

import (
	"encoding/json"
	"time"

	"github.com/omnihub/backend/internal/domain/security"
)

// CredentialModel is the persistence model for the Credential domain entity.
// Secrets are stored only as vault ciphertext; the plaintext map never
// reaches this layer.
type CredentialModel struct {
	ID         string `gorm:"type:uuid;primary_key"`
	UserID     string `gorm:"type:varchar(64);not null;index:idx_credentials_user,priority:1;uniqueIndex:idx_credentials_user_platform_id,priority:1"`
	Platform   string `gorm:"type:varchar(32);not null;index:idx_credentials_platform"`
	PlatformID string `gorm:"type:varchar(128);not null;uniqueIndex:idx_credentials_user_platform_id,priority:2"`
	Name       string `gorm:"type:varchar(255)"`

	Ciphertext    []byte `gorm:"type:bytea;not null"`
	WebhookSecret string `gorm:"type:varchar(128)"`

	Active    bool       `gorm:"not null;default:true;index"`
	ExpiresAt *time.Time `gorm:"index"`
	LastUsed  *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "platform_credentials"
}

// ToDomain converts the persistence model to a domain Credential. Secrets
// stay nil; the caller decrypts the returned ciphertext through the vault.
func (m *CredentialModel) ToDomain() *security.Credential {
	return &security.Credential{
		ID:            m.ID,
		UserID:        m.UserID,
		Platform:      m.Platform,
		PlatformID:    m.PlatformID,
		Name:          m.Name,
		WebhookSecret: m.WebhookSecret,
		Active:        m.Active,
		ExpiresAt:     m.ExpiresAt,
		LastUsed:      m.LastUsed,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Credential and
// its vault ciphertext.
func (m *CredentialModel) FromDomain(c *security.Credential, ciphertext []byte) {
	m.ID = c.ID
	m.UserID = c.UserID
	m.Platform = c.Platform
	m.PlatformID = c.PlatformID
	m.Name = c.Name
	m.Ciphertext = ciphertext
	m.WebhookSecret = c.WebhookSecret
	m.Active = c.Active
	m.ExpiresAt = c.ExpiresAt
	m.LastUsed = c.LastUsed
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// AuditLogModel is the persistence model for append-only audit entries.
// There is deliberately no update path for this table.
type AuditLogModel struct {
	ID         string    `gorm:"type:uuid;primary_key"`
	Timestamp  time.Time `gorm:"not null;index:idx_audit_timestamp"`
	UserID     string    `gorm:"type:varchar(64);index:idx_audit_user"`
	Platform   string    `gorm:"type:varchar(32);index:idx_audit_platform"`
	Action     string    `gorm:"type:varchar(64);not null;index:idx_audit_action"`
	DetailJSON string    `gorm:"type:jsonb;column:detail"`
	Success    bool      `gorm:"not null"`
	Error      string    `gorm:"type:text"`
	SourceIP   string    `gorm:"type:varchar(45)"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_log"
}

// ToDomain converts the persistence model to a domain AuditEntry.
func (m *AuditLogModel) ToDomain() *security.AuditEntry {
	entry := &security.AuditEntry{
		ID:        m.ID,
		Timestamp: m.Timestamp,
		UserID:    m.UserID,
		Platform:  m.Platform,
		Action:    security.Action(m.Action),
		Success:   m.Success,
		Error:     m.Error,
		SourceIP:  m.SourceIP,
	}
	if m.DetailJSON != "" {
		var detail map[string]any
		if err := json.Unmarshal([]byte(m.DetailJSON), &detail); err == nil {
			entry.Detail = detail
		}
	}
	return entry
}

// FromDomain populates the persistence model from a domain AuditEntry.
func (m *AuditLogModel) FromDomain(e *security.AuditEntry) {
	m.ID = e.ID
	m.Timestamp = e.Timestamp
	m.UserID = e.UserID
	m.Platform = e.Platform
	m.Action = e.Action.String()
	m.Success = e.Success
	m.Error = e.Error
	m.SourceIP = e.SourceIP
	if len(e.Detail) > 0 {
		if jsonBytes, err := json.Marshal(e.Detail); err == nil {
			m.DetailJSON = string(jsonBytes)
		}
	} else {
		m.DetailJSON = "{}"
	}
}
