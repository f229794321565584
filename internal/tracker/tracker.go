// Package tracker keeps a bounded per-chat record of messages the bot sent,
// so that previous bot noise can be purged on the next interaction.
package tracker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/logger"
)

// chatSet holds tracked message ids for one chat in insertion order.
// purgeMu serializes purges within the chat; different chats purge
// independently.
type chatSet struct {
	purgeMu sync.Mutex
	ids     []int
}

// Tracker records outbound bot messages per chat, capped at a fixed ceiling
// with oldest-first eviction.
type Tracker struct {
	mu      sync.Mutex
	chats   map[int64]*chatSet
	ceiling int

	gw      gateway.Gateway
	limiter *rate.Limiter
}

// New creates a tracker. ratePerSec paces purge deletions against the
// platform's per-chat rate limits.
func New(gw gateway.Gateway, ceiling int, ratePerSec int) *Tracker {
	if ceiling <= 0 {
		ceiling = 50
	}
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &Tracker{
		chats:   make(map[int64]*chatSet),
		ceiling: ceiling,
		gw:      gw,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Track appends a message id to the chat's set. Once the set exceeds the
// ceiling the oldest entries are dropped from tracking; they become
// un-purgeable, trading completeness for bounded memory.
func (t *Tracker) Track(chatID int64, messageID int) {
	if chatID == 0 || messageID == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.chats[chatID]
	if !ok {
		set = &chatSet{}
		t.chats[chatID] = set
	}
	set.ids = append(set.ids, messageID)
	if over := len(set.ids) - t.ceiling; over > 0 {
		dropped := set.ids[:over]
		set.ids = set.ids[over:]
		logger.Debugf("tracker ceiling reached in chat %d, dropped %d oldest entries", chatID, len(dropped))
	}
}

// PurgeAll deletes every tracked message for the chat sequentially, oldest
// first, skipping keepID. It returns how many messages were removed from
// tracking (deleted or already gone). Entries that fail for any other
// reason stay tracked for a later purge attempt.
func (t *Tracker) PurgeAll(ctx context.Context, chatID int64, keepID int) int {
	t.mu.Lock()
	set, ok := t.chats[chatID]
	t.mu.Unlock()
	if !ok {
		return 0
	}

	set.purgeMu.Lock()
	defer set.purgeMu.Unlock()

	t.mu.Lock()
	batch := make([]int, len(set.ids))
	copy(batch, set.ids)
	t.mu.Unlock()

	removed := make(map[int]bool, len(batch))
	count := 0
	for _, id := range batch {
		if id == keepID {
			continue
		}
		if err := t.limiter.Wait(ctx); err != nil {
			break
		}
		err := t.gw.DeleteMessage(ctx, chatID, id)
		if err != nil && !errors.Is(err, gateway.ErrMessageNotFound) {
			logger.Warningf("purge: failed to delete message %d in chat %d: %v", id, chatID, err)
			continue
		}
		if err == nil {
			count++
		}
		removed[id] = true
	}

	t.mu.Lock()
	kept := set.ids[:0]
	for _, id := range set.ids {
		if !removed[id] {
			kept = append(kept, id)
		}
	}
	set.ids = kept
	if len(set.ids) == 0 {
		delete(t.chats, chatID)
	}
	t.mu.Unlock()

	return count
}

// Clear forgets all tracked messages for a chat without deleting them.
func (t *Tracker) Clear(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.chats, chatID)
}

// Tracked returns the tracked ids for a chat in insertion order.
func (t *Tracker) Tracked(chatID int64) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]int, len(set.ids))
	copy(out, set.ids)
	return out
}
