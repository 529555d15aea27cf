package engine

import (
	"context"
	"sync"
)

// envelope carries a submitted request to the Run loop and its result back.
type envelope struct {
	ctx   context.Context
	req   Request
	reply chan reply // Buffered, size 1
}

type reply struct {
	result Result
	err    error
}

// requestQueue is a thread-safe FIFO queue of submitted requests.
//
// Thread-safety is provided for external enqueuing (e.g., HTTP handlers)
// while the Engine's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type requestQueue struct {
	mu      sync.Mutex
	pending []envelope
	closed  bool
	signal  chan struct{} // Signals availability (buffered, size 1)
}

// newRequestQueue creates an empty queue.
func newRequestQueue() *requestQueue {
	return &requestQueue{
		pending: make([]envelope, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an envelope to the back of the queue.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(e envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, e)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front envelope without blocking.
// Returns (envelope{}, false) if the queue is empty.
func (q *requestQueue) TryDequeue() (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return envelope{}, false
	}

	e := q.pending[0]
	// Nil out the slot so the backing array does not retain the request.
	q.pending[0] = envelope{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}

	return e, true
}

// Wait returns a channel that signals when envelopes may be available.
// The channel is closed once the queue is closed.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close signals that no more envelopes will be enqueued and returns the
// ones still pending so the caller can fail them.
func (q *requestQueue) Close() []envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)
	drained := q.pending
	q.pending = nil
	return drained
}
