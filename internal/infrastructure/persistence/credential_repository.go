package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/omnihub/backend/internal/domain/security"
	"github.com/omnihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCredentialRepository implements security.CredentialRepository using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

var _ security.CredentialRepository = (*GormCredentialRepository)(nil)

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Save upserts a credential keyed on (user_id, platform_id). Reconnecting
// an existing integration replaces its ciphertext in place.
func (r *GormCredentialRepository) Save(ctx context.Context, cred *security.Credential, ciphertext []byte) error {
	var model models.CredentialModel
	model.FromDomain(cred, ciphertext)

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "platform_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "ciphertext", "webhook_secret", "active", "expires_at", "updated_at",
			}),
		}).
		Create(&model).Error
}

// Find returns the credential and its ciphertext for a user's integration
func (r *GormCredentialRepository) Find(ctx context.Context, userID, platformID string) (*security.Credential, []byte, error) {
	var model models.CredentialModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform_id = ?", userID, platformID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, security.ErrCredentialNotFound
		}
		return nil, nil, err
	}
	return model.ToDomain(), model.Ciphertext, nil
}

// FindByUser returns all credentials for a user, active and revoked
func (r *GormCredentialRepository) FindByUser(ctx context.Context, userID string) ([]*security.Credential, error) {
	var ms []models.CredentialModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*security.Credential, len(ms))
	for i := range ms {
		out[i] = ms[i].ToDomain()
	}
	return out, nil
}

// FindByPlatform returns every active credential for a platform
func (r *GormCredentialRepository) FindByPlatform(ctx context.Context, platform string) ([]*security.Credential, error) {
	var ms []models.CredentialModel
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND active = ?", platform, true).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*security.Credential, len(ms))
	for i := range ms {
		out[i] = ms[i].ToDomain()
	}
	return out, nil
}

// Deactivate marks a credential revoked without deleting its row
func (r *GormCredentialRepository) Deactivate(ctx context.Context, userID, platformID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.CredentialModel{}).
		Where("user_id = ? AND platform_id = ?", userID, platformID).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return security.ErrCredentialNotFound
	}
	return nil
}

// Delete removes a credential row entirely
func (r *GormCredentialRepository) Delete(ctx context.Context, userID, platformID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND platform_id = ?", userID, platformID).
		Delete(&models.CredentialModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return security.ErrCredentialNotFound
	}
	return nil
}

// ExpireStale deactivates credentials whose expiry passed before now
func (r *GormCredentialRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CredentialModel{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Updates(map[string]any{"active": false, "updated_at": now})
	return result.RowsAffected, result.Error
}
