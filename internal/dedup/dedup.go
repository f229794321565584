// Package dedup provides an atomic first-writer-wins guard for one-time
// actions, such as sending a welcome message exactly once per member.
package dedup

import (
	"sync"
)

// Guard remembers which subjects have already fired. Population is capped:
// once the ceiling is exceeded the oldest-inserted subjects are evicted
// first. Size the ceiling generously relative to expected concurrent
// subject volume; an evicted subject can trigger again.
type Guard struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	ceiling int
}

// New creates a guard with the given population ceiling.
func New(ceiling int) *Guard {
	if ceiling <= 0 {
		ceiling = 4096
	}
	return &Guard{
		seen:    make(map[string]struct{}),
		ceiling: ceiling,
	}
}

// TryMarkFirst marks the subject and reports whether this call was the
// first to do so. Check-and-set happens under one lock, so concurrent
// callers for the same subject get exactly one true.
func (g *Guard) TryMarkFirst(subjectID string) bool {
	if subjectID == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[subjectID]; ok {
		return false
	}
	g.seen[subjectID] = struct{}{}
	g.order = append(g.order, subjectID)
	g.evictLocked()
	return true
}

// HasFired reports whether the subject has already been marked.
func (g *Guard) HasFired(subjectID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[subjectID]
	return ok
}

// Len reports the current population, an observable health metric.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

func (g *Guard) evictLocked() {
	for len(g.seen) > g.ceiling && len(g.order) > 0 {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
}
