// Package dispatch bridges the sensor's background receive path to the
// single-threaded tick loop.
//
// A Queue is the only structure shared between the two: the receiver
// pushes decoded batches from its own goroutine and the Dispatcher drains
// them once per tick, delivering each batch whole to every subscriber in
// arrival order.
package dispatch

import "sync"

// Queue is an unbounded FIFO safe for concurrent Push and Drain.
// The zero value is ready to use.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	pushed uint64
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends v. It returns false, dropping v, once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.pushed++
	return true
}

// Drain removes and returns everything queued, oldest first.
// It returns nil when the queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pushed returns the total number of accepted pushes.
func (q *Queue[T]) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}

// Close stops accepting pushes. Items already queued can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
