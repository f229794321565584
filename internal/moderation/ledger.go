package moderation

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"tg-groupguard/internal/models"
)

// WarningStore is the persistence contract the ledger needs.
type WarningStore interface {
	Create(warning *models.Warning) error
	CountActive(userID, scopeID int64, issuedAfter time.Time) (int, error)
	DeactivateAll(userID, scopeID int64, clearedBy string) (int, error)
}

// WarnResult is the outcome of recording a warning.
type WarnResult struct {
	ActiveCount int
	Action      models.ActionType
}

// lockStripes bounds the per-key mutex population independent of how many
// (user, scope) pairs are ever seen.
const lockStripes = 64

// Ledger records warnings durably and computes the escalation action from
// the active count. Operations for the same (user, scope) key serialize on
// a striped lock so a later warning always observes the effect of an
// earlier one.
type Ledger struct {
	store  WarningStore
	table  *EscalationTable
	expiry time.Duration

	stripes [lockStripes]sync.Mutex

	// now is swapped in tests to control the clock.
	now func() time.Time
}

// NewLedger creates a ledger. expiry is the horizon after which warnings
// age out of the active count without being cleared.
func NewLedger(store WarningStore, table *EscalationTable, expiry time.Duration) *Ledger {
	return &Ledger{
		store:  store,
		table:  table,
		expiry: expiry,
		now:    time.Now,
	}
}

func (l *Ledger) lock(userID, scopeID int64) *sync.Mutex {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%d", scopeID, userID)
	return &l.stripes[h.Sum64()%lockStripes]
}

// AddWarning persists a warning, recomputes the active count from a
// consistent snapshot and returns the configured escalation action.
func (l *Ledger) AddWarning(userID, scopeID int64, reason string) (WarnResult, error) {
	if userID == 0 || scopeID == 0 {
		return WarnResult{}, fmt.Errorf("user and scope are required")
	}

	mu := l.lock(userID, scopeID)
	mu.Lock()
	defer mu.Unlock()

	now := l.now()
	warning := &models.Warning{
		UserID:   userID,
		ScopeID:  scopeID,
		Reason:   reason,
		Active:   true,
		IssuedAt: now,
	}
	if err := l.store.Create(warning); err != nil {
		return WarnResult{}, fmt.Errorf("failed to persist warning: %w", err)
	}

	count, err := l.store.CountActive(userID, scopeID, now.Add(-l.expiry))
	if err != nil {
		return WarnResult{}, fmt.Errorf("failed to count active warnings: %w", err)
	}

	return WarnResult{ActiveCount: count, Action: l.table.ActionFor(count)}, nil
}

// ActiveCount returns the current number of active, unexpired warnings.
func (l *Ledger) ActiveCount(userID, scopeID int64) (int, error) {
	return l.store.CountActive(userID, scopeID, l.now().Add(-l.expiry))
}

// Clear deactivates every active warning for the subject in one logical
// step and reports how many were actually cleared, 0 when there was
// nothing to clear.
func (l *Ledger) Clear(userID, scopeID int64, clearedBy string) (int, error) {
	if userID == 0 || scopeID == 0 {
		return 0, fmt.Errorf("user and scope are required")
	}

	mu := l.lock(userID, scopeID)
	mu.Lock()
	defer mu.Unlock()

	count, err := l.store.DeactivateAll(userID, scopeID, clearedBy)
	if err != nil {
		return 0, fmt.Errorf("failed to clear warnings: %w", err)
	}
	return count, nil
}
