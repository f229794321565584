// Package flood maintains sliding time-window event counters per
// (user, scope) key for rate-abuse detection.
package flood

import (
	"fmt"
	"sync"
	"time"

	"tg-groupguard/internal/crash"
	"tg-groupguard/internal/logger"
)

const (
	compactionInterval = 10 * time.Minute
	// stalenessHorizon is how long a key may sit idle before compaction
	// removes it.
	stalenessHorizon = 10 * time.Minute
)

type window struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// Result of a flood check.
type Result struct {
	IsFlooding bool
	Count      int
}

// Detector tracks one ordered timestamp list per (user, scope) key.
type Detector struct {
	mu      sync.Mutex
	entries map[string]*window

	stop chan struct{}
	once sync.Once

	// now is swapped in tests to control the clock.
	now func() time.Time
}

// New creates a detector and starts its background compaction loop.
func New() *Detector {
	d := &Detector{
		entries: make(map[string]*window),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	crash.SafeGoroutine("flood-compaction", d.compactLoop)
	return d
}

// Stop terminates the compaction goroutine.
func (d *Detector) Stop() {
	d.once.Do(func() { close(d.stop) })
}

// RecordAndCheck appends the current event, drops timestamps older than the
// window and reports whether the resulting count exceeds limit. Append and
// count happen under one lock, so a concurrent compaction can never drop
// the just-appended timestamp.
func (d *Detector) RecordAndCheck(userID, scopeID int64, limit int, windowSeconds int) Result {
	key := fmt.Sprintf("%d:%d", scopeID, userID)
	now := d.now()
	cutoff := now.Add(-time.Duration(windowSeconds) * time.Second)

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[key]
	if !ok {
		entry = &window{timestamps: make([]time.Time, 0, limit+1)}
		d.entries[key] = entry
	}
	entry.lastSeen = now

	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = append(valid, now)

	count := len(entry.timestamps)
	return Result{IsFlooding: count > limit, Count: count}
}

// Len reports the number of live keys, an observable health metric.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Compact removes keys whose most recent event is older than the staleness
// horizon, bounding memory independent of call volume.
func (d *Detector) Compact() {
	cutoff := d.now().Add(-stalenessHorizon)

	d.mu.Lock()
	defer d.mu.Unlock()

	before := len(d.entries)
	for key, entry := range d.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(d.entries, key)
		}
	}
	if dropped := before - len(d.entries); dropped > 0 {
		logger.Debugf("flood compaction removed %d stale keys, %d remain", dropped, len(d.entries))
	}
}

func (d *Detector) compactLoop() {
	ticker := time.NewTicker(compactionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Compact()
		case <-d.stop:
			return
		}
	}
}
