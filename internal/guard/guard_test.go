package guard

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/models"
)

type fakeGateway struct {
	mu      sync.Mutex
	deleted []int
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (int, error) {
	return 0, nil
}

func (f *fakeGateway) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time, perms gateway.Permissions) error {
	return nil
}

func (f *fakeGateway) BanMember(ctx context.Context, chatID, userID int64) error   { return nil }
func (f *fakeGateway) UnbanMember(ctx context.Context, chatID, userID int64) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Moderation: config.ModerationConfig{
			FloodLimit:        5,
			FloodWindowSecs:   10,
			WarningExpiryDays: 7,
			MuteDurationMins:  60,
			AllowedDomains:    []string{"example.com"},
		},
		Cleaner: config.CleanerConfig{
			TrackerCeiling:  50,
			DedupCeiling:    128,
			SweepGraceSecs:  120,
			PurgeRatePerSec: 100,
		},
	}
}

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g := New(testConfig(), &fakeGateway{}, nil, nil)
	t.Cleanup(func() { g.Flood.Stop() })
	return g
}

func TestClassifyMessageAllowsListedDomains(t *testing.T) {
	g := newTestGuard(t)
	rules := g.ScopeRules()

	if v := g.ClassifyMessage("see https://docs.example.com/start", rules); !v.Empty() {
		t.Errorf("allow-listed link flagged: %+v", v)
	}
	if v := g.ClassifyMessage("see https://evil.com/win", rules); len(v.Links) != 1 {
		t.Errorf("unlisted link not flagged: %+v", v)
	}
}

func TestClassifyMessageFlagsBannedTerms(t *testing.T) {
	g := newTestGuard(t)

	v := g.ClassifyMessage("join our crypto giveaway", g.ScopeRules())
	if len(v.BannedTerms) != 1 {
		t.Fatalf("BannedTerms = %v, want one match", v.BannedTerms)
	}
	if got := v.Reason(); !strings.HasPrefix(got, "banned term:") {
		t.Errorf("Reason() = %q, want banned term prefix", got)
	}
}

func TestViolationReasonPriority(t *testing.T) {
	v := ViolationSet{
		Links:       []string{"https://evil.com"},
		SpamKinds:   []string{"caps"},
		BannedTerms: []string{"scam"},
	}
	if got := v.Reason(); got != "link: https://evil.com" {
		t.Errorf("Reason() = %q, want the link first", got)
	}
	if got := (ViolationSet{}).Reason(); got != "" {
		t.Errorf("Reason() = %q for empty set, want empty", got)
	}
}

func TestProcessMessageCleanText(t *testing.T) {
	g := newTestGuard(t)

	verdict, err := g.ProcessMessage(context.Background(), 7, 100, "good morning everyone")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if verdict.Violation {
		t.Errorf("clean message flagged: %+v", verdict)
	}
}

func TestProcessMessageWithoutStoreDegrades(t *testing.T) {
	g := newTestGuard(t)

	verdict, err := g.ProcessMessage(context.Background(), 7, 100, "visit https://evil.com now")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !verdict.Violation {
		t.Fatalf("violation not reported: %+v", verdict)
	}
	// Without a ledger there is no escalation, only detection.
	if verdict.ActiveCount != 0 || verdict.Action != models.ActionNone || verdict.Enforced {
		t.Errorf("verdict = %+v, want detection without escalation", verdict)
	}
}

func TestProcessMessageFloodReason(t *testing.T) {
	cfg := testConfig()
	cfg.Moderation.FloodLimit = 2
	g := New(cfg, &fakeGateway{}, nil, nil)
	t.Cleanup(func() { g.Flood.Stop() })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		verdict, err := g.ProcessMessage(ctx, 7, 100, "hello")
		if err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
		if verdict.Violation {
			t.Fatalf("message %d flagged below the limit: %+v", i+1, verdict)
		}
	}

	verdict, err := g.ProcessMessage(ctx, 7, 100, "hello")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !verdict.Violation || verdict.Reason != "flooding" {
		t.Errorf("verdict = %+v, want flooding violation", verdict)
	}
}

func TestTryFirstTimeActionOncePerSubject(t *testing.T) {
	g := newTestGuard(t)

	if !g.TryFirstTimeAction("welcome:100:7") {
		t.Fatalf("first action blocked")
	}
	if g.TryFirstTimeAction("welcome:100:7") {
		t.Errorf("repeat action allowed")
	}
}
