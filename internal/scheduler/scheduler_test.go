package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"tg-groupguard/internal/gateway"
)

type fakeGateway struct {
	mu       sync.Mutex
	deleted  []int
	attempts int
	err      error
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
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

func (f *fakeGateway) deletedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestScheduleFiresAfterDelay(t *testing.T) {
	fake := &fakeGateway{}
	s := New(fake, time.Minute)
	s.Start(time.Hour)
	defer s.Stop()

	if h := s.Schedule(1, 10, CategoryBot, 20*time.Millisecond); h == nil {
		t.Fatalf("Schedule returned nil handle")
	}

	waitFor(t, 2*time.Second, func() bool {
		ids := fake.deletedIDs()
		return len(ids) == 1 && ids[0] == 10
	})

	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d after task fired, want 0", got)
	}
}

func TestCancelPreventsDeletion(t *testing.T) {
	fake := &fakeGateway{}
	s := New(fake, time.Minute)
	s.Start(time.Hour)
	defer s.Stop()

	h := s.Schedule(1, 10, CategoryBot, 50*time.Millisecond)
	if !s.Cancel(h) {
		t.Fatalf("Cancel returned false for pending task")
	}
	if s.Cancel(h) {
		t.Errorf("second Cancel returned true, want false")
	}

	time.Sleep(150 * time.Millisecond)
	if ids := fake.deletedIDs(); len(ids) != 0 {
		t.Errorf("cancelled task still fired: deleted %v", ids)
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d after cancel, want 0", got)
	}
}

func TestCancelNilAndUnknown(t *testing.T) {
	s := New(&fakeGateway{}, time.Minute)
	if s.Cancel(nil) {
		t.Errorf("Cancel(nil) = true, want false")
	}
}

func TestDuplicateScheduleRejected(t *testing.T) {
	s := New(&fakeGateway{}, time.Minute)

	if h := s.Schedule(1, 10, CategoryBot, time.Hour); h == nil {
		t.Fatalf("first Schedule returned nil")
	}
	if h := s.Schedule(1, 10, CategoryCommand, time.Hour); h != nil {
		t.Errorf("duplicate Schedule returned a handle, want nil")
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestScheduleRejectsMissingIDs(t *testing.T) {
	s := New(&fakeGateway{}, time.Minute)
	if h := s.Schedule(0, 10, CategoryBot, time.Hour); h != nil {
		t.Errorf("Schedule with zero chat accepted")
	}
	if h := s.Schedule(1, 0, CategoryBot, time.Hour); h != nil {
		t.Errorf("Schedule with zero message accepted")
	}
}

func TestAlreadyGoneTreatedAsSuccess(t *testing.T) {
	fake := &fakeGateway{err: gateway.ErrMessageNotFound}
	s := New(fake, time.Minute)
	s.Start(time.Hour)
	defer s.Stop()

	s.Schedule(1, 10, CategoryBot, 10*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return s.Len() == 0 })

	fake.mu.Lock()
	attempts := fake.attempts
	fake.mu.Unlock()
	if attempts != 1 {
		t.Errorf("delete attempts = %d, want 1 (no retries for a gone message)", attempts)
	}
}

func TestDrainPendingFlushesImmediately(t *testing.T) {
	fake := &fakeGateway{}
	s := New(fake, time.Minute)

	s.Schedule(1, 10, CategoryBot, time.Hour)
	s.Schedule(1, 11, CategoryCommand, time.Hour)

	s.DrainPending(context.Background())

	if ids := fake.deletedIDs(); len(ids) != 2 {
		t.Fatalf("DrainPending deleted %d messages, want 2", len(ids))
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d after drain, want 0", got)
	}
}

func TestCancelRacingNaturalFire(t *testing.T) {
	fake := &fakeGateway{}
	s := New(fake, time.Minute)
	s.Start(time.Hour)
	defer s.Stop()

	const tasks = 50
	handles := make([]*Handle, tasks)
	for i := 0; i < tasks; i++ {
		handles[i] = s.Schedule(1, i+1, CategoryBot, time.Duration(i)*time.Millisecond)
	}

	// Cancel while tasks are firing; whichever side wins, each message is
	// deleted at most once.
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			s.Cancel(h)
		}(h)
	}
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool { return s.Len() == 0 })
	time.Sleep(100 * time.Millisecond)

	seen := make(map[int]int)
	for _, id := range fake.deletedIDs() {
		seen[id]++
		if seen[id] > 1 {
			t.Fatalf("message %d deleted %d times", id, seen[id])
		}
	}
}

func TestSweepDropsStaleTasks(t *testing.T) {
	fake := &fakeGateway{}
	s := New(fake, 50*time.Millisecond)

	s.Schedule(1, 10, CategoryBot, -time.Second)
	s.Schedule(1, 11, CategoryBot, time.Hour)

	s.Sweep()

	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d after sweep, want 1", got)
	}
	if ids := fake.deletedIDs(); len(ids) != 0 {
		t.Errorf("sweep deleted messages %v, want none", ids)
	}
}
