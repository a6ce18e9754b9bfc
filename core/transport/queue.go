package transport

import "sync"

// replyQueue is a thread-safe FIFO of completed requests.
//
// Workers enqueue from their goroutines; the control loop dequeues. The
// buffered signal channel coalesces wakeups so the loop can select on it
// next to its other event sources.
type replyQueue struct {
	mu      sync.Mutex
	replies []Reply
	pending int
	closed  bool
	signal  chan struct{}
}

func newReplyQueue() *replyQueue {
	return &replyQueue{
		replies: make([]Reply, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Begin counts a request whose reply has not been queued yet.
func (q *replyQueue) Begin() {
	q.mu.Lock()
	q.pending++
	q.mu.Unlock()
}

// Cancel undoes Begin for a request that was never executed.
func (q *replyQueue) Cancel() {
	q.mu.Lock()
	if q.pending > 0 {
		q.pending--
	}
	q.mu.Unlock()
}

// Enqueue appends a reply and settles one pending request in the same
// critical section, so a waiter never sees the count drop before the reply
// is visible. It returns false once the queue is closed.
func (q *replyQueue) Enqueue(r Reply) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending > 0 {
		q.pending--
	}
	if q.closed {
		return false
	}
	q.replies = append(q.replies, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// DrainAll removes every queued reply.
func (q *replyQueue) DrainAll() []Reply {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.replies) == 0 {
		return nil
	}
	out := make([]Reply, len(q.replies))
	copy(out, q.replies)
	clear(q.replies)
	q.replies = q.replies[:0]
	return out
}

// Wait returns a channel signalled when replies may be available.
func (q *replyQueue) Wait() <-chan struct{} {
	return q.signal
}

// Pending returns the number of requests still waiting for a reply.
func (q *replyQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close stops accepting replies and wakes waiters.
func (q *replyQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
