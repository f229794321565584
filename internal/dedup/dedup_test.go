package dedup

import (
	"sync"
	"testing"
)

func TestFirstCallWins(t *testing.T) {
	g := New(16)

	if !g.TryMarkFirst("welcome:1:2") {
		t.Fatalf("first TryMarkFirst = false, want true")
	}
	if g.TryMarkFirst("welcome:1:2") {
		t.Errorf("second TryMarkFirst = true, want false")
	}
	if !g.HasFired("welcome:1:2") {
		t.Errorf("HasFired = false after mark")
	}
}

func TestConcurrentCallersGetExactlyOneTrue(t *testing.T) {
	g := New(16)

	const callers = 32
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.TryMarkFirst("welcome:9:9")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("%d callers got true, want exactly 1", wins)
	}
}

func TestCeilingEvictsOldestFirst(t *testing.T) {
	g := New(2)

	g.TryMarkFirst("a")
	g.TryMarkFirst("b")
	g.TryMarkFirst("c")

	if g.HasFired("a") {
		t.Errorf("oldest subject still present after eviction")
	}
	if !g.HasFired("b") || !g.HasFired("c") {
		t.Errorf("recent subjects evicted, want kept")
	}
	if got := g.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	// An evicted subject may fire again.
	if !g.TryMarkFirst("a") {
		t.Errorf("evicted subject could not re-fire")
	}
}

func TestEmptySubjectNeverFires(t *testing.T) {
	g := New(16)
	if g.TryMarkFirst("") {
		t.Errorf("TryMarkFirst(\"\") = true, want false")
	}
	if got := g.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}
