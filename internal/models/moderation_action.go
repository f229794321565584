package models

import "time"

// ActionType enumerates the enforcement actions recorded in the audit trail.
type ActionType string

const (
	ActionNone   ActionType = "none"
	ActionMute   ActionType = "mute"
	ActionBan    ActionType = "ban"
	ActionKick   ActionType = "kick"
	ActionUnmute ActionType = "unmute"
	ActionUnban  ActionType = "unban"
)

// ModerationAction is a durable audit record of an enforcement action.
// Records are never deleted: lifting a restriction writes a new unmute or
// unban action and expires the prior one, preserving the trail while
// changing the computed status.
type ModerationAction struct {
	ID      uint       `gorm:"primaryKey;autoIncrement"`
	UserID  int64      `gorm:"index:idx_action_user_scope;not null"`
	ScopeID int64      `gorm:"index:idx_action_user_scope;not null"`
	Type    ActionType `gorm:"size:16;not null"`
	Reason  string     `gorm:"type:text"`
	// IssuedBy records the issuing admin, or "auto" for escalations.
	IssuedBy string    `gorm:"default:''"`
	IssuedAt time.Time `gorm:"index;not null"`
	// ExpiresAt is nil for permanent actions such as bans.
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
