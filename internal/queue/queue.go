// Package queue provides the receive queue that hands decoded packets from the
// transport receive loops to the single-threaded session tick.
package queue

import (
	"sync"
	"sync/atomic"
)

// Queue is an unbounded FIFO safe for many concurrent producers and one consumer.
// Arrival order is preserved per producer; there is no ordering between producers.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool

	discarded atomic.Int64
}

// New returns an empty open Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends v to the queue. Pushes after Close are discarded.
//
// Postcondition: Returns true if v was enqueued.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.discarded.Add(1)
		return false
	}
	q.items = append(q.items, v)
	return true
}

// TryPop removes and returns the oldest item without blocking.
//
// Postcondition: Returns (item, true), or the zero value and false if the queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close stops accepting new items. Items already queued can still be popped.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Discarded returns the number of items rejected after Close or removed by Drain.
func (q *Queue[T]) Discarded() int64 {
	return q.discarded.Load()
}

// Drain removes every queued item and counts it as discarded.
//
// Postcondition: Returns the number of items removed; Len is zero.
func (q *Queue[T]) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items) - q.head
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	q.discarded.Add(int64(n))
	return n
}
