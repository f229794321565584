// Package scheduler owns all pending single-shot delayed message deletions.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"tg-groupguard/internal/crash"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/logger"
)

// Category describes why a message is scheduled for removal.
type Category string

const (
	CategoryBot     Category = "bot"
	CategoryCommand Category = "command"
	CategorySystem  Category = "system"
)

type taskKey struct {
	chatID    int64
	messageID int
}

// Handle is the opaque cancellation token returned by Schedule.
type Handle struct {
	chatID    int64
	messageID int
	category  Category
	dueAt     time.Time

	// index is the position in the heap, -1 once popped or removed.
	index int
	// done is set under the scheduler mutex when the task fires, is
	// cancelled, or is swept. A done task never fires again.
	done bool
}

// Scheduler drains a min-heap of due deletions with a single goroutine
// rather than arming one OS timer per message.
type Scheduler struct {
	mu    sync.Mutex
	heap  taskHeap
	tasks map[taskKey]*Handle

	gw    gateway.Gateway
	grace time.Duration

	wake chan struct{}
	stop chan struct{}
	once sync.Once
}

// New creates a scheduler. grace is the window past dueAt after which an
// unfired task is considered stale and swept.
func New(gw gateway.Gateway, grace time.Duration) *Scheduler {
	return &Scheduler{
		tasks: make(map[taskKey]*Handle),
		gw:    gw,
		grace: grace,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
}

// Start launches the drain goroutine and the periodic stale-entry sweep.
func (s *Scheduler) Start(sweepInterval time.Duration) {
	crash.SafeGoroutine("deletion-scheduler", s.run)
	crash.SafeGoroutine("deletion-sweep", func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	})
}

// Stop terminates the background goroutines. Pending tasks stay in the
// registry; call DrainPending afterwards to flush them best-effort.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Schedule registers a deletion to fire after delay. It returns nil when
// chatID or messageID is missing, or when a live task already exists for the
// same message (callers must cancel before rescheduling).
func (s *Scheduler) Schedule(chatID int64, messageID int, category Category, delay time.Duration) *Handle {
	if chatID == 0 || messageID == 0 {
		return nil
	}

	key := taskKey{chatID: chatID, messageID: messageID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[key]; exists {
		logger.Warningf("deletion already scheduled for message %d in chat %d, ignoring", messageID, chatID)
		return nil
	}

	h := &Handle{
		chatID:    chatID,
		messageID: messageID,
		category:  category,
		dueAt:     time.Now().Add(delay),
	}
	s.tasks[key] = h
	heap.Push(&s.heap, h)

	// Nudge the drain loop in case this task is now the earliest.
	select {
	case s.wake <- struct{}{}:
	default:
	}

	return h
}

// Cancel revokes a pending deletion. It returns false when the handle is
// nil, unknown, already fired or already cancelled. Safe to call
// concurrently with the task's natural fire time.
func (s *Scheduler) Cancel(h *Handle) bool {
	if h == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.done {
		return false
	}
	h.done = true
	delete(s.tasks, taskKey{chatID: h.chatID, messageID: h.messageID})
	if h.index >= 0 {
		heap.Remove(&s.heap, h.index)
	}
	return true
}

// Sweep drops bookkeeping entries whose due time is more than the grace
// window in the past without having fired. This is a safety net against
// timer anomalies, not a normal path.
func (s *Scheduler) Sweep() {
	cutoff := time.Now().Add(-s.grace)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, h := range s.tasks {
		if h.done || h.dueAt.After(cutoff) {
			continue
		}
		logger.Warningf("sweeping stale deletion task for message %d in chat %d (due %s)",
			h.messageID, h.chatID, h.dueAt.Format(time.RFC3339))
		h.done = true
		delete(s.tasks, key)
		if h.index >= 0 {
			heap.Remove(&s.heap, h.index)
		}
	}
}

// Len reports the number of live tasks, an observable health metric.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// DrainPending fires every still-pending deletion immediately. Called on
// shutdown so ephemeral messages do not outlive the process.
func (s *Scheduler) DrainPending(ctx context.Context) {
	s.mu.Lock()
	pending := make([]*Handle, 0, len(s.tasks))
	for key, h := range s.tasks {
		if h.done {
			continue
		}
		h.done = true
		if h.index >= 0 {
			heap.Remove(&s.heap, h.index)
		}
		delete(s.tasks, key)
		pending = append(pending, h)
	}
	s.mu.Unlock()

	for _, h := range pending {
		s.deliver(ctx, h)
	}
	if len(pending) > 0 {
		logger.Infof("flushed %d pending deletions during shutdown", len(pending))
	}
}

func (s *Scheduler) run() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		next := s.popDue()
		for next != nil {
			s.deliver(context.Background(), next)
			next = s.popDue()
		}

		wait := s.nextWait()
		if wait < 0 {
			select {
			case <-s.wake:
			case <-s.stop:
				return
			}
			continue
		}

		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

// popDue removes and returns the earliest task that is due, or nil.
func (s *Scheduler) popDue() *Handle {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.heap.Len() > 0 {
		h := s.heap[0]
		if h.done {
			heap.Pop(&s.heap)
			continue
		}
		if h.dueAt.After(now) {
			return nil
		}
		heap.Pop(&s.heap)
		h.done = true
		delete(s.tasks, taskKey{chatID: h.chatID, messageID: h.messageID})
		return h
	}
	return nil
}

// nextWait returns the time until the earliest pending task, or -1 when the
// heap is empty.
func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.heap.Len() > 0 {
		h := s.heap[0]
		if h.done {
			heap.Pop(&s.heap)
			continue
		}
		wait := time.Until(h.dueAt)
		if wait < 0 {
			wait = 0
		}
		return wait
	}
	return -1
}

// deliver attempts the gateway delete for a fired task. Already-gone is
// success; anything else is logged and dropped, a missed ephemeral deletion
// is cosmetic.
func (s *Scheduler) deliver(ctx context.Context, h *Handle) {
	err := s.gw.DeleteMessage(ctx, h.chatID, h.messageID)
	switch {
	case err == nil:
		logger.Debugf("deleted %s message %d in chat %d", h.category, h.messageID, h.chatID)
	case errors.Is(err, gateway.ErrMessageNotFound):
		logger.Debugf("message %d in chat %d already gone", h.messageID, h.chatID)
	default:
		logger.Warningf("failed to delete message %d in chat %d: %v", h.messageID, h.chatID, err)
	}
}

// taskHeap is a min-heap over due times.
type taskHeap []*Handle

func (t taskHeap) Len() int           { return len(t) }
func (t taskHeap) Less(i, j int) bool { return t[i].dueAt.Before(t[j].dueAt) }
func (t taskHeap) Swap(i, j int)      { t[i], t[j] = t[j], t[i]; t[i].index = i; t[j].index = j }
func (t *taskHeap) Push(x interface{}) {
	h := x.(*Handle)
	h.index = len(*t)
	*t = append(*t, h)
}
func (t *taskHeap) Pop() interface{} {
	old := *t
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*t = old[:n-1]
	return h
}
