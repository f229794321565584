// Package guard composes the cleanup and moderation services behind the
// caller-facing API consumed by the delivery-channel adapter.
package guard

import (
	"context"
	"strings"
	"time"

	"tg-groupguard/internal/classifier"
	"tg-groupguard/internal/config"
	"tg-groupguard/internal/dedup"
	"tg-groupguard/internal/flood"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
	"tg-groupguard/internal/moderation"
	"tg-groupguard/internal/scheduler"
	"tg-groupguard/internal/tracker"
)

// ScopeConfig carries the per-scope moderation rules applied during
// classification.
type ScopeConfig struct {
	AllowedDomains   []string
	ExtraBannedTerms []string
	Thresholds       classifier.Thresholds
}

// ViolationSet lists everything the classifier flagged in one message.
type ViolationSet struct {
	Links       []string
	SpamKinds   []string
	BannedTerms []string
}

// Empty reports whether no violation was found.
func (v ViolationSet) Empty() bool {
	return len(v.Links) == 0 && len(v.SpamKinds) == 0 && len(v.BannedTerms) == 0
}

// Reason returns a short human-readable label for the primary violation.
func (v ViolationSet) Reason() string {
	switch {
	case len(v.Links) > 0:
		return "link: " + v.Links[0]
	case len(v.BannedTerms) > 0:
		return "banned term: " + v.BannedTerms[0]
	case len(v.SpamKinds) > 0:
		return "spam signal: " + strings.Join(v.SpamKinds, ",")
	default:
		return ""
	}
}

// Verdict is the outcome of running a message through the moderation flow.
type Verdict struct {
	Violation   bool
	Reason      string
	ActiveCount int
	Action      models.ActionType
	Enforced    bool
}

// Guard owns one instance of every core service. Construct once per
// process and pass by reference.
type Guard struct {
	Scheduler *scheduler.Scheduler
	Tracker   *tracker.Tracker
	Dedup     *dedup.Guard
	Flood     *flood.Detector

	ledger   *moderation.Ledger
	enforcer *moderation.Enforcer

	cfg *config.Config
}

// New wires the core services. ledger and enforcer may be nil when the
// database is disabled; moderation then degrades to detection without
// escalation, mirroring how the rest of the system treats a missing store.
func New(cfg *config.Config, gw gateway.Gateway, ledger *moderation.Ledger, enforcer *moderation.Enforcer) *Guard {
	return &Guard{
		Scheduler: scheduler.New(gw, time.Duration(cfg.Cleaner.SweepGraceSecs)*time.Second),
		Tracker:   tracker.New(gw, cfg.Cleaner.TrackerCeiling, cfg.Cleaner.PurgeRatePerSec),
		Dedup:     dedup.New(cfg.Cleaner.DedupCeiling),
		Flood:     flood.New(),
		ledger:    ledger,
		enforcer:  enforcer,
		cfg:       cfg,
	}
}

// Start launches the scheduler's drain and sweep loops.
func (g *Guard) Start() {
	g.Scheduler.Start(time.Duration(g.cfg.Cleaner.SweepIntervalSecs) * time.Second)
}

// Stop terminates background loops and flushes pending deletions.
func (g *Guard) Stop(ctx context.Context) {
	g.Flood.Stop()
	g.Scheduler.Stop()
	g.Scheduler.DrainPending(ctx)
}

// ScopeRules returns the scope configuration derived from global config.
func (g *Guard) ScopeRules() ScopeConfig {
	m := g.cfg.Moderation
	th := classifier.DefaultThresholds()
	if m.CapsRatio > 0 {
		th.CapsRatio = m.CapsRatio
	}
	if m.CapsMinLetters > 0 {
		th.CapsMinLetters = m.CapsMinLetters
	}
	if m.MaxRepeatedChars > 0 {
		th.MaxRepeatedChars = m.MaxRepeatedChars
	}
	if m.MaxPunctuationRun > 0 {
		th.MaxPunctuationRun = m.MaxPunctuationRun
	}
	if m.MaxEmojiCount > 0 {
		th.MaxEmojiCount = m.MaxEmojiCount
	}
	return ScopeConfig{
		AllowedDomains:   m.AllowedDomains,
		ExtraBannedTerms: m.ExtraBannedTerms,
		Thresholds:       th,
	}
}

// ScheduleEphemeralDeletion registers a timed removal for a message.
func (g *Guard) ScheduleEphemeralDeletion(chatID int64, messageID int, category scheduler.Category, delay time.Duration) *scheduler.Handle {
	return g.Scheduler.Schedule(chatID, messageID, category, delay)
}

// TrackOutboundMessage records a bot message for later bulk purge.
func (g *Guard) TrackOutboundMessage(chatID int64, messageID int) {
	g.Tracker.Track(chatID, messageID)
}

// PurgePreviousMessages deletes previously tracked bot messages in the
// chat, keeping keepID.
func (g *Guard) PurgePreviousMessages(ctx context.Context, chatID int64, keepID int) int {
	return g.Tracker.PurgeAll(ctx, chatID, keepID)
}

// TryFirstTimeAction reports whether this is the first trigger for the
// subject; exactly one concurrent caller wins.
func (g *Guard) TryFirstTimeAction(subjectID string) bool {
	return g.Dedup.TryMarkFirst(subjectID)
}

// ClassifyMessage runs the stateless content checks against the scope
// rules. Links on the allow-list are exempted here, keeping detection
// itself scope-agnostic.
func (g *Guard) ClassifyMessage(text string, scope ScopeConfig) ViolationSet {
	var out ViolationSet

	links := classifier.DetectLinks(text)
	for _, link := range links.Items {
		if !classifier.IsAllowed(link, scope.AllowedDomains) {
			out.Links = append(out.Links, link)
		}
	}

	if spam := classifier.DetectSpamSignal(text, scope.Thresholds); spam.IsSpam {
		out.SpamKinds = spam.Kinds
	}
	if terms := classifier.DetectBannedTerms(text, scope.ExtraBannedTerms); terms.Found {
		out.BannedTerms = terms.Items
	}

	return out
}

// CheckFlood records one event for the user in the scope and reports
// whether they are flooding.
func (g *Guard) CheckFlood(userID, scopeID int64, limit, windowSeconds int) flood.Result {
	return g.Flood.RecordAndCheck(userID, scopeID, limit, windowSeconds)
}

// RecordWarning persists a warning and returns the escalation decision.
func (g *Guard) RecordWarning(userID, scopeID int64, reason string) (moderation.WarnResult, error) {
	if g.ledger == nil {
		logger.Warningf("warning for user %d not recorded: database disabled", userID)
		return moderation.WarnResult{Action: models.ActionNone}, nil
	}
	return g.ledger.AddWarning(userID, scopeID, reason)
}

// ClearWarnings deactivates all active warnings for the subject.
func (g *Guard) ClearWarnings(userID, scopeID int64, clearedBy string) (int, error) {
	if g.ledger == nil {
		return 0, nil
	}
	return g.ledger.Clear(userID, scopeID, clearedBy)
}

// EnforceAction executes a moderation action against the user. Failures
// propagate so the caller can report them; a silent failed enforcement is
// unacceptable.
func (g *Guard) EnforceAction(ctx context.Context, action models.ActionType, userID, scopeID int64, reason, issuedBy string) error {
	if g.enforcer == nil {
		logger.Warningf("cannot enforce %s for user %d: database disabled", action, userID)
		return nil
	}

	muteDuration := time.Duration(g.cfg.Moderation.MuteDurationMins) * time.Minute
	switch action {
	case models.ActionNone:
		return nil
	case models.ActionMute:
		return g.enforcer.ApplyMute(ctx, userID, scopeID, muteDuration, reason, issuedBy)
	case models.ActionBan:
		return g.enforcer.ApplyBan(ctx, userID, scopeID, reason, issuedBy)
	case models.ActionKick:
		return g.enforcer.ApplyKick(ctx, userID, scopeID, reason, issuedBy)
	case models.ActionUnmute:
		return g.enforcer.Unmute(ctx, userID, scopeID, issuedBy)
	case models.ActionUnban:
		return g.enforcer.Unban(ctx, userID, scopeID, issuedBy)
	default:
		logger.Warningf("unknown enforcement action %q for user %d", action, userID)
		return nil
	}
}

// ModerationHistory returns recent enforcement records, newest first.
func (g *Guard) ModerationHistory(userID, scopeID int64, limit int) ([]*models.ModerationAction, error) {
	if g.enforcer == nil {
		return nil, nil
	}
	return g.enforcer.History(userID, scopeID, limit)
}

// MuteFor applies a mute with an explicit duration instead of the configured
// default.
func (g *Guard) MuteFor(ctx context.Context, userID, scopeID int64, duration time.Duration, reason, issuedBy string) error {
	if g.enforcer == nil {
		logger.Warningf("cannot mute user %d: database disabled", userID)
		return nil
	}
	return g.enforcer.ApplyMute(ctx, userID, scopeID, duration, reason, issuedBy)
}

// RestrictionStatus returns the user's current restriction, or nil.
func (g *Guard) RestrictionStatus(ctx context.Context, userID, scopeID int64) (*moderation.Status, error) {
	if g.enforcer == nil {
		return nil, nil
	}
	return g.enforcer.Status(ctx, userID, scopeID)
}

// ProcessMessage runs the full moderation flow for one inbound group
// message: flood detection, content classification, warning escalation and
// enforcement. The returned verdict tells the adapter whether the message
// should be deleted.
func (g *Guard) ProcessMessage(ctx context.Context, userID, scopeID int64, text string) (Verdict, error) {
	m := g.cfg.Moderation

	var reason string
	if res := g.CheckFlood(userID, scopeID, m.FloodLimit, m.FloodWindowSecs); res.IsFlooding {
		reason = "flooding"
	} else if violations := g.ClassifyMessage(text, g.ScopeRules()); !violations.Empty() {
		reason = violations.Reason()
	}

	if reason == "" {
		return Verdict{}, nil
	}

	result, err := g.RecordWarning(userID, scopeID, reason)
	if err != nil {
		return Verdict{Violation: true, Reason: reason}, err
	}

	verdict := Verdict{
		Violation:   true,
		Reason:      reason,
		ActiveCount: result.ActiveCount,
		Action:      result.Action,
	}

	if result.Action != models.ActionNone {
		if err := g.EnforceAction(ctx, result.Action, userID, scopeID, reason, "auto"); err != nil {
			return verdict, err
		}
		verdict.Enforced = true
	}

	return verdict, nil
}
