package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tg-groupguard/internal/cache"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
)

// ActionStore is the persistence contract the enforcer needs.
type ActionStore interface {
	Create(action *models.ModerationAction) error
	GetLatestRestriction(userID, scopeID int64, now time.Time) (*models.ModerationAction, error)
	ExpireActive(userID, scopeID int64, types []models.ActionType, now time.Time) error
	GetRecent(userID, scopeID int64, limit int) ([]*models.ModerationAction, error)
}

// statusCache is the lookup contract the enforcer needs from the cache.
// A nil *cache.StatusCache satisfies it; every call degrades to a miss.
type statusCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte)
	Invalidate(ctx context.Context, key string)
}

// Status describes the current restriction computed from the audit history.
type Status struct {
	Restricted bool              `json:"restricted"`
	Type       models.ActionType `json:"type,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// Enforcer translates escalation decisions into gateway restrictions and
// durable audit records. The gateway call always comes first: a record is
// only written for an effect that actually happened externally.
type Enforcer struct {
	gw    gateway.Gateway
	store ActionStore
	cache statusCache

	now func() time.Time
}

// NewEnforcer creates an enforcer. statusCache may be nil.
func NewEnforcer(gw gateway.Gateway, store ActionStore, statusCache *cache.StatusCache) *Enforcer {
	return &Enforcer{
		gw:    gw,
		store: store,
		cache: statusCache,
		now:   time.Now,
	}
}

// ApplyMute restricts the user for the given duration and records the
// action. The gateway failure propagates and suppresses the audit write.
func (e *Enforcer) ApplyMute(ctx context.Context, userID, scopeID int64, duration time.Duration, reason, issuedBy string) error {
	if userID == 0 || scopeID == 0 {
		return fmt.Errorf("user and scope are required")
	}

	now := e.now()
	until := now.Add(duration)

	if err := e.gw.RestrictMember(ctx, scopeID, userID, until, gateway.Permissions{}); err != nil {
		return fmt.Errorf("failed to restrict user %d in scope %d: %w", userID, scopeID, err)
	}

	action := &models.ModerationAction{
		UserID:    userID,
		ScopeID:   scopeID,
		Type:      models.ActionMute,
		Reason:    reason,
		IssuedBy:  issuedBy,
		IssuedAt:  now,
		ExpiresAt: &until,
	}
	if err := e.store.Create(action); err != nil {
		return fmt.Errorf("failed to record mute for user %d: %w", userID, err)
	}

	e.invalidate(ctx, userID, scopeID)
	logger.Infof("muted user %d in scope %d until %s (%s)", userID, scopeID, until.Format(time.RFC3339), reason)
	return nil
}

// ApplyBan permanently bans the user and records the action.
func (e *Enforcer) ApplyBan(ctx context.Context, userID, scopeID int64, reason, issuedBy string) error {
	if userID == 0 || scopeID == 0 {
		return fmt.Errorf("user and scope are required")
	}

	if err := e.gw.BanMember(ctx, scopeID, userID); err != nil {
		return fmt.Errorf("failed to ban user %d in scope %d: %w", userID, scopeID, err)
	}

	action := &models.ModerationAction{
		UserID:   userID,
		ScopeID:  scopeID,
		Type:     models.ActionBan,
		Reason:   reason,
		IssuedBy: issuedBy,
		IssuedAt: e.now(),
	}
	if err := e.store.Create(action); err != nil {
		return fmt.Errorf("failed to record ban for user %d: %w", userID, err)
	}

	e.invalidate(ctx, userID, scopeID)
	logger.Infof("banned user %d in scope %d (%s)", userID, scopeID, reason)
	return nil
}

// ApplyKick removes the user without a lasting restriction: ban followed by
// unban so they may rejoin.
func (e *Enforcer) ApplyKick(ctx context.Context, userID, scopeID int64, reason, issuedBy string) error {
	if userID == 0 || scopeID == 0 {
		return fmt.Errorf("user and scope are required")
	}

	if err := e.gw.BanMember(ctx, scopeID, userID); err != nil {
		return fmt.Errorf("failed to kick user %d in scope %d: %w", userID, scopeID, err)
	}
	if err := e.gw.UnbanMember(ctx, scopeID, userID); err != nil {
		return fmt.Errorf("failed to lift kick ban for user %d in scope %d: %w", userID, scopeID, err)
	}

	now := e.now()
	action := &models.ModerationAction{
		UserID:    userID,
		ScopeID:   scopeID,
		Type:      models.ActionKick,
		Reason:    reason,
		IssuedBy:  issuedBy,
		IssuedAt:  now,
		ExpiresAt: &now,
	}
	if err := e.store.Create(action); err != nil {
		return fmt.Errorf("failed to record kick for user %d: %w", userID, err)
	}

	e.invalidate(ctx, userID, scopeID)
	logger.Infof("kicked user %d from scope %d (%s)", userID, scopeID, reason)
	return nil
}

// Unmute restores permissions and supersedes active mutes by expiring them
// now, preserving the audit trail.
func (e *Enforcer) Unmute(ctx context.Context, userID, scopeID int64, issuedBy string) error {
	if userID == 0 || scopeID == 0 {
		return fmt.Errorf("user and scope are required")
	}

	if err := e.gw.RestrictMember(ctx, scopeID, userID, time.Time{}, gateway.FullPermissions()); err != nil {
		return fmt.Errorf("failed to unrestrict user %d in scope %d: %w", userID, scopeID, err)
	}

	now := e.now()
	if err := e.store.ExpireActive(userID, scopeID, []models.ActionType{models.ActionMute}, now); err != nil {
		return fmt.Errorf("failed to expire mutes for user %d: %w", userID, err)
	}

	action := &models.ModerationAction{
		UserID:   userID,
		ScopeID:  scopeID,
		Type:     models.ActionUnmute,
		IssuedBy: issuedBy,
		IssuedAt: now,
	}
	if err := e.store.Create(action); err != nil {
		return fmt.Errorf("failed to record unmute for user %d: %w", userID, err)
	}

	e.invalidate(ctx, userID, scopeID)
	logger.Infof("unmuted user %d in scope %d", userID, scopeID)
	return nil
}

// Unban lifts a ban and supersedes active bans by expiring them now.
func (e *Enforcer) Unban(ctx context.Context, userID, scopeID int64, issuedBy string) error {
	if userID == 0 || scopeID == 0 {
		return fmt.Errorf("user and scope are required")
	}

	if err := e.gw.UnbanMember(ctx, scopeID, userID); err != nil {
		return fmt.Errorf("failed to unban user %d in scope %d: %w", userID, scopeID, err)
	}

	now := e.now()
	if err := e.store.ExpireActive(userID, scopeID, []models.ActionType{models.ActionBan}, now); err != nil {
		return fmt.Errorf("failed to expire bans for user %d: %w", userID, err)
	}

	action := &models.ModerationAction{
		UserID:   userID,
		ScopeID:  scopeID,
		Type:     models.ActionUnban,
		IssuedBy: issuedBy,
		IssuedAt: now,
	}
	if err := e.store.Create(action); err != nil {
		return fmt.Errorf("failed to record unban for user %d: %w", userID, err)
	}

	e.invalidate(ctx, userID, scopeID)
	logger.Infof("unbanned user %d in scope %d", userID, scopeID)
	return nil
}

// Status computes the current restriction from the durable history: the
// latest mute or ban not yet expired and not superseded. Returns nil when
// the user is unrestricted. Served from the cache when available.
func (e *Enforcer) Status(ctx context.Context, userID, scopeID int64) (*Status, error) {
	key := statusKey(userID, scopeID)
	if payload, ok := e.cache.Get(ctx, key); ok {
		var status Status
		if err := json.Unmarshal(payload, &status); err == nil {
			if !status.Restricted {
				return nil, nil
			}
			// A restriction can lapse within the cache TTL. An expired
			// entry falls through to the store for a fresh answer.
			if status.ExpiresAt == nil || status.ExpiresAt.After(e.now()) {
				return &status, nil
			}
		}
	}

	action, err := e.store.GetLatestRestriction(userID, scopeID, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to query restriction status: %w", err)
	}

	status := Status{}
	if action != nil {
		status = Status{Restricted: true, Type: action.Type, ExpiresAt: action.ExpiresAt}
	}
	if payload, err := json.Marshal(status); err == nil {
		e.cache.Set(ctx, key, payload)
	}

	if !status.Restricted {
		return nil, nil
	}
	return &status, nil
}

// History returns the most recent audit records for the subject, newest
// first.
func (e *Enforcer) History(userID, scopeID int64, limit int) ([]*models.ModerationAction, error) {
	return e.store.GetRecent(userID, scopeID, limit)
}

func (e *Enforcer) invalidate(ctx context.Context, userID, scopeID int64) {
	e.cache.Invalidate(ctx, statusKey(userID, scopeID))
}

func statusKey(userID, scopeID int64) string {
	return fmt.Sprintf("restriction:%d:%d", scopeID, userID)
}
