package storage

import (
	"errors"
	"time"

	"tg-groupguard/internal/models"

	"gorm.io/gorm"
)

// ActionRepository handles database operations for ModerationAction
type ActionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new ActionRepository
func NewActionRepository(db *gorm.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// MigrateTable ensures the ModerationAction table exists
func (r *ActionRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.ModerationAction{})
}

// Create inserts a new ModerationAction
func (r *ActionRepository) Create(action *models.ModerationAction) error {
	return r.db.Create(action).Error
}

// GetLatestRestriction returns the most recent mute or ban that has not
// expired by now, or nil when the user is unrestricted.
func (r *ActionRepository) GetLatestRestriction(userID, scopeID int64, now time.Time) (*models.ModerationAction, error) {
	var action models.ModerationAction
	result := r.db.
		Where("user_id = ? AND scope_id = ? AND type IN ?", userID, scopeID,
			[]models.ActionType{models.ActionMute, models.ActionBan}).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("issued_at DESC").
		First(&action)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &action, nil
}

// ExpireActive sets expires_at to now on every unexpired action of the
// given types, superseding them without deleting the audit trail.
func (r *ActionRepository) ExpireActive(userID, scopeID int64, types []models.ActionType, now time.Time) error {
	return r.db.Model(&models.ModerationAction{}).
		Where("user_id = ? AND scope_id = ? AND type IN ?", userID, scopeID, types).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Updates(map[string]interface{}{"expires_at": now, "updated_at": now}).Error
}

// GetRecent returns the latest actions for a user in a scope, newest first.
func (r *ActionRepository) GetRecent(userID, scopeID int64, limit int) ([]*models.ModerationAction, error) {
	var actions []*models.ModerationAction
	result := r.db.
		Where("user_id = ? AND scope_id = ?", userID, scopeID).
		Order("issued_at DESC").
		Limit(limit).
		Find(&actions)
	return actions, result.Error
}
