package scheduler

import (
	"slices"
	"sync"
)

// fileQueue is a thread-safe FIFO of file paths awaiting processing.
//
// A path is queued at most once. The signal channel lets Run wait for work
// and cancellation in one select.
type fileQueue struct {
	mu     sync.Mutex
	paths  []string
	closed bool
	signal chan struct{} // buffered, size 1
}

func newFileQueue() *fileQueue {
	return &fileQueue{
		paths:  make([]string, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds path to the back of the queue. Returns false if the queue
// is closed or path is already pending.
func (q *fileQueue) Enqueue(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || slices.Contains(q.paths, path) {
		return false
	}
	q.paths = append(q.paths, path)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Remove drops a pending path. Returns false if it was not pending.
func (q *fileQueue) Remove(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := slices.Index(q.paths, path)
	if i < 0 {
		return false
	}
	q.paths = slices.Delete(q.paths, i, i+1)
	return true
}

// TryDequeue removes the front path without blocking.
func (q *fileQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.paths) == 0 {
		return "", false
	}
	p := q.paths[0]
	if len(q.paths) == 1 {
		q.paths = q.paths[:0]
	} else {
		q.paths = q.paths[1:]
	}
	return p, true
}

// Wait returns a channel that fires when paths may be available. It is
// closed when the queue is closed.
func (q *fileQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending paths.
func (q *fileQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths)
}

// Close rejects further enqueues and wakes waiters.
func (q *fileQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
