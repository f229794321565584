package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/models"
)

type stubGateway struct {
	restrictCalls int
	banCalls      int
	unbanCalls    int
	lastUntil     time.Time
	lastPerms     gateway.Permissions

	restrictErr error
	banErr      error
	unbanErr    error
}

func (s *stubGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func (s *stubGateway) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (int, error) {
	return 0, nil
}

func (s *stubGateway) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time, perms gateway.Permissions) error {
	if s.restrictErr != nil {
		return s.restrictErr
	}
	s.restrictCalls++
	s.lastUntil = until
	s.lastPerms = perms
	return nil
}

func (s *stubGateway) BanMember(ctx context.Context, chatID, userID int64) error {
	if s.banErr != nil {
		return s.banErr
	}
	s.banCalls++
	return nil
}

func (s *stubGateway) UnbanMember(ctx context.Context, chatID, userID int64) error {
	if s.unbanErr != nil {
		return s.unbanErr
	}
	s.unbanCalls++
	return nil
}

type memActionStore struct {
	actions []*models.ModerationAction
}

func (m *memActionStore) Create(action *models.ModerationAction) error {
	cp := *action
	if action.ExpiresAt != nil {
		exp := *action.ExpiresAt
		cp.ExpiresAt = &exp
	}
	m.actions = append(m.actions, &cp)
	return nil
}

func (m *memActionStore) GetLatestRestriction(userID, scopeID int64, now time.Time) (*models.ModerationAction, error) {
	var latest *models.ModerationAction
	for _, a := range m.actions {
		if a.UserID != userID || a.ScopeID != scopeID {
			continue
		}
		if a.Type != models.ActionMute && a.Type != models.ActionBan {
			continue
		}
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || a.IssuedAt.After(latest.IssuedAt) {
			latest = a
		}
	}
	return latest, nil
}

func (m *memActionStore) ExpireActive(userID, scopeID int64, types []models.ActionType, now time.Time) error {
	match := func(t models.ActionType) bool {
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}
	for _, a := range m.actions {
		if a.UserID != userID || a.ScopeID != scopeID || !match(a.Type) {
			continue
		}
		if a.ExpiresAt == nil || a.ExpiresAt.After(now) {
			exp := now
			a.ExpiresAt = &exp
		}
	}
	return nil
}

func (m *memActionStore) GetRecent(userID, scopeID int64, limit int) ([]*models.ModerationAction, error) {
	var out []*models.ModerationAction
	for i := len(m.actions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.actions[i].UserID == userID && m.actions[i].ScopeID == scopeID {
			out = append(out, m.actions[i])
		}
	}
	return out, nil
}

type memStatusCache struct {
	entries map[string][]byte
	hits    int
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{entries: make(map[string][]byte)}
}

func (m *memStatusCache) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, ok := m.entries[key]
	if ok {
		m.hits++
	}
	return payload, ok
}

func (m *memStatusCache) Set(ctx context.Context, key string, payload []byte) {
	m.entries[key] = payload
}

func (m *memStatusCache) Invalidate(ctx context.Context, key string) {
	delete(m.entries, key)
}

func newTestEnforcer(gw gateway.Gateway, store ActionStore, now *time.Time) *Enforcer {
	e := NewEnforcer(gw, store, nil)
	e.now = func() time.Time { return *now }
	return e
}

func TestMuteRestrictsThenRecords(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	store := &memActionStore{}
	e := newTestEnforcer(gw, store, &now)

	if err := e.ApplyMute(context.Background(), 7, 100, time.Hour, "spam", "auto"); err != nil {
		t.Fatalf("ApplyMute: %v", err)
	}

	if gw.restrictCalls != 1 {
		t.Errorf("restrict calls = %d, want 1", gw.restrictCalls)
	}
	if gw.lastPerms != (gateway.Permissions{}) {
		t.Errorf("mute applied with permissions %+v, want none", gw.lastPerms)
	}
	if want := now.Add(time.Hour); !gw.lastUntil.Equal(want) {
		t.Errorf("until = %v, want %v", gw.lastUntil, want)
	}

	if len(store.actions) != 1 {
		t.Fatalf("store holds %d actions, want 1", len(store.actions))
	}
	a := store.actions[0]
	if a.Type != models.ActionMute || a.ExpiresAt == nil || !a.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("recorded action = %+v, want mute expiring in an hour", a)
	}
}

func TestGatewayFailureSuppressesAudit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{restrictErr: errors.New("not enough rights")}
	store := &memActionStore{}
	e := newTestEnforcer(gw, store, &now)

	if err := e.ApplyMute(context.Background(), 7, 100, time.Hour, "spam", "auto"); err == nil {
		t.Fatalf("ApplyMute succeeded despite gateway failure")
	}
	if len(store.actions) != 0 {
		t.Errorf("audit record written for an effect that never happened: %+v", store.actions)
	}
}

func TestMuteStatusUnmuteRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	store := &memActionStore{}
	e := newTestEnforcer(gw, store, &now)
	ctx := context.Background()

	if err := e.ApplyMute(ctx, 7, 100, time.Hour, "spam", "auto"); err != nil {
		t.Fatalf("ApplyMute: %v", err)
	}

	status, err := e.Status(ctx, 7, 100)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status == nil || status.Type != models.ActionMute {
		t.Fatalf("Status = %+v, want active mute", status)
	}

	if err := e.Unmute(ctx, 7, 100, "admin:1"); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if gw.lastPerms != gateway.FullPermissions() {
		t.Errorf("unmute restored permissions %+v, want full", gw.lastPerms)
	}

	status, err = e.Status(ctx, 7, 100)
	if err != nil {
		t.Fatalf("Status after unmute: %v", err)
	}
	if status != nil {
		t.Errorf("Status = %+v after unmute, want nil", status)
	}

	// The mute stays in history, superseded rather than deleted.
	if len(store.actions) != 2 {
		t.Errorf("store holds %d actions, want mute plus unmute", len(store.actions))
	}
}

func TestBanIsPermanentUntilUnban(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	store := &memActionStore{}
	e := newTestEnforcer(gw, store, &now)
	ctx := context.Background()

	if err := e.ApplyBan(ctx, 7, 100, "repeat offender", "auto"); err != nil {
		t.Fatalf("ApplyBan: %v", err)
	}

	// A permanent ban still shows restricted far in the future.
	now = now.Add(365 * 24 * time.Hour)
	status, err := e.Status(ctx, 7, 100)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status == nil || status.Type != models.ActionBan || status.ExpiresAt != nil {
		t.Fatalf("Status = %+v, want permanent ban", status)
	}

	if err := e.Unban(ctx, 7, 100, "admin:1"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if gw.unbanCalls != 1 {
		t.Errorf("unban calls = %d, want 1", gw.unbanCalls)
	}

	status, _ = e.Status(ctx, 7, 100)
	if status != nil {
		t.Errorf("Status = %+v after unban, want nil", status)
	}
}

func TestKickBansThenUnbans(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	store := &memActionStore{}
	e := newTestEnforcer(gw, store, &now)
	ctx := context.Background()

	if err := e.ApplyKick(ctx, 7, 100, "spam", "auto"); err != nil {
		t.Fatalf("ApplyKick: %v", err)
	}
	if gw.banCalls != 1 || gw.unbanCalls != 1 {
		t.Errorf("ban/unban calls = %d/%d, want 1/1", gw.banCalls, gw.unbanCalls)
	}

	// A kick leaves no lasting restriction.
	status, _ := e.Status(ctx, 7, 100)
	if status != nil {
		t.Errorf("Status = %+v after kick, want nil", status)
	}
}

func TestStatusServedFromCache(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	store := &memActionStore{}
	mc := newMemStatusCache()
	e := newTestEnforcer(gw, store, &now)
	e.cache = mc
	ctx := context.Background()

	if err := e.ApplyMute(ctx, 7, 100, time.Hour, "spam", "auto"); err != nil {
		t.Fatalf("ApplyMute: %v", err)
	}

	// First lookup fills the cache, the second is served from it.
	if _, err := e.Status(ctx, 7, 100); err != nil {
		t.Fatalf("Status: %v", err)
	}
	status, err := e.Status(ctx, 7, 100)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status == nil || status.Type != models.ActionMute {
		t.Fatalf("Status = %+v, want active mute", status)
	}
	if mc.hits != 1 {
		t.Errorf("cache hits = %d, want 1", mc.hits)
	}
}

func TestStatusCacheHitHonorsExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	store := &memActionStore{}
	mc := newMemStatusCache()
	e := newTestEnforcer(gw, store, &now)
	e.cache = mc
	ctx := context.Background()

	if err := e.ApplyMute(ctx, 7, 100, time.Minute, "spam", "auto"); err != nil {
		t.Fatalf("ApplyMute: %v", err)
	}
	if _, err := e.Status(ctx, 7, 100); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(mc.entries) != 1 {
		t.Fatalf("cache holds %d entries after lookup, want 1", len(mc.entries))
	}

	// The mute lapses while its cache entry is still live. The stale hit
	// must not report the user as restricted.
	now = now.Add(2 * time.Minute)
	status, err := e.Status(ctx, 7, 100)
	if err != nil {
		t.Fatalf("Status after expiry: %v", err)
	}
	if status != nil {
		t.Errorf("Status = %+v for a lapsed mute, want nil", status)
	}
}

func TestEnforcerRejectsMissingSubject(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEnforcer(&stubGateway{}, &memActionStore{}, &now)

	if err := e.ApplyMute(context.Background(), 0, 100, time.Hour, "x", "auto"); err == nil {
		t.Errorf("ApplyMute with zero user accepted")
	}
	if err := e.ApplyBan(context.Background(), 7, 0, "x", "auto"); err == nil {
		t.Errorf("ApplyBan with zero scope accepted")
	}
}
