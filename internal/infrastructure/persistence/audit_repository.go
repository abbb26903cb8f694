package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/omnihub/backend/internal/domain/security"
	"github.com/omnihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAuditRepository implements security.AuditRepository using GORM.
// The table is append-only: no update methods exist.
type GormAuditRepository struct {
	db *gorm.DB
}

var _ security.AuditRepository = (*GormAuditRepository)(nil)

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append writes one audit entry. The id column is a uuid primary key, so
// entries arriving without one (system-generated entries, e.g. expiry
// sweeps) get their identity assigned here.
func (r *GormAuditRepository) Append(ctx context.Context, entry *security.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var model models.AuditLogModel
	model.FromDomain(entry)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Query returns matching entries newest-first plus the total match count
func (r *GormAuditRepository) Query(ctx context.Context, filter security.AuditFilter) ([]*security.AuditEntry, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.AuditLogModel{})

	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Platform != "" {
		q = q.Where("platform = ?", filter.Platform)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action.String())
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp < ?", filter.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var ms []models.AuditLogModel
	if err := q.Order("timestamp DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*security.AuditEntry, len(ms))
	for i := range ms {
		out[i] = ms[i].ToDomain()
	}
	return out, total, nil
}

// OlderThan returns entries past the retention cutoff, oldest first
func (r *GormAuditRepository) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*security.AuditEntry, error) {
	var ms []models.AuditLogModel
	if err := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Order("timestamp ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*security.AuditEntry, len(ms))
	for i := range ms {
		out[i] = ms[i].ToDomain()
	}
	return out, nil
}

// DeleteOlderThan removes archived entries past the retention cutoff
func (r *GormAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.AuditLogModel{})
	return result.RowsAffected, result.Error
}
