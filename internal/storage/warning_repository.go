package storage

import (
	"time"

	"tg-groupguard/internal/models"

	"gorm.io/gorm"
)

// WarningRepository handles database operations for Warning
type WarningRepository struct {
	db *gorm.DB
}

// NewWarningRepository creates a new WarningRepository
func NewWarningRepository(db *gorm.DB) *WarningRepository {
	return &WarningRepository{db: db}
}

// MigrateTable ensures the Warning table exists
func (r *WarningRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.Warning{})
}

// Create inserts a new Warning
func (r *WarningRepository) Create(warning *models.Warning) error {
	return r.db.Create(warning).Error
}

// CountActive returns the number of active warnings for a user in a scope
// issued at or after the expiry cutoff.
func (r *WarningRepository) CountActive(userID, scopeID int64, issuedAfter time.Time) (int, error) {
	var count int64
	result := r.db.Model(&models.Warning{}).
		Where("user_id = ? AND scope_id = ? AND active = ? AND issued_at >= ?", userID, scopeID, true, issuedAfter).
		Count(&count)
	return int(count), result.Error
}

// DeactivateAll marks every active warning for the user in the scope as
// inactive in one step and returns how many were cleared.
func (r *WarningRepository) DeactivateAll(userID, scopeID int64, clearedBy string) (int, error) {
	result := r.db.Model(&models.Warning{}).
		Where("user_id = ? AND scope_id = ? AND active = ?", userID, scopeID, true).
		Updates(map[string]interface{}{"active": false, "cleared_by": clearedBy, "updated_at": time.Now()})
	return int(result.RowsAffected), result.Error
}
