package models

import "time"

// Warning is a durable record of a moderation violation against a user
// within a scope. A warning counts as active while its Active flag is set
// and its IssuedAt is within the configured expiry horizon; aged-out
// warnings stop counting without being touched.
type Warning struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"index:idx_warning_user_scope;not null"`
	ScopeID   int64     `gorm:"index:idx_warning_user_scope;not null"`
	Reason    string    `gorm:"type:text"`
	Active    bool      `gorm:"default:true;index"`
	ClearedBy string    `gorm:"default:''"`
	IssuedAt  time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
