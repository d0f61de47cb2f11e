package reconciler

import (
	"context"
	"sync"
)

// triggerQueue is a bounded work queue of depth one. At most one trigger is
// pending at a time; a trigger arriving while another is already pending (or
// while a pass is in flight) is coalesced into the pending slot rather than
// queued behind it, so a burst of triggers costs at most one extra pass.
type triggerQueue struct {
	mu sync.Mutex

	// pending holds the single queued trigger.
	pending *Trigger

	// cond wakes blocked Get calls.
	cond *sync.Cond

	// shuttingDown indicates the queue is stopping.
	shuttingDown bool
}

func newTriggerQueue() *triggerQueue {
	q := &triggerQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add queues a trigger, coalescing with any already-pending one. A manual
// trigger takes precedence over an automatic one in the merged slot so its
// forced one-shot sync is not lost.
func (q *triggerQueue) Add(t Trigger) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	if q.pending != nil {
		if t.Source == SourceManual {
			q.pending.Source = SourceManual
		}
		q.pending.Timestamp = t.Timestamp
		return
	}

	q.pending = &t
	q.cond.Signal()
}

// Get retrieves the pending trigger, blocking until one is available or the
// context is cancelled.
func (q *triggerQueue) Get(ctx context.Context) (Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending == nil && !q.shuttingDown {
		select {
		case <-ctx.Done():
			return Trigger{}, false
		default:
		}

		// Race a context watcher against the normal wakeup; closing done
		// ensures the goroutine exits whichever way we wake.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)

		select {
		case <-ctx.Done():
			return Trigger{}, false
		default:
		}
	}

	if q.pending == nil {
		return Trigger{}, false
	}

	t := *q.pending
	q.pending = nil
	return t, true
}

// Len returns the number of pending triggers (0 or 1).
func (q *triggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending != nil {
		return 1
	}
	return 0
}

// Shutdown stops the queue and wakes any blocked Get.
func (q *triggerQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.cond.Broadcast()
}
