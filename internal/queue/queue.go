// Package queue provides the unbounded FIFO that backs every queued sink.
//
// Any number of producers may Push concurrently; exactly one consumer is expected to
// Pop, process the item, and then call Done. Pending counts pushed items that have not
// been marked Done, which lets callers wait for the consumer to go idle.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO guarded by a single mutex and condition variable.
type Queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	head    int
	pending int
	closed  bool
	idle    chan struct{} // closed when pending drops to zero, replaced on next push
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{idle: make(chan struct{})}
	close(q.idle)
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. It returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.items = append(q.items, item)
	q.pending++
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed and empty.
// ok is false only in the latter case.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return item, false
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		// compact so a long-lived backlog does not pin the old array
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// Done marks one popped item as fully processed.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return
	}
	q.pending--
	if q.pending == 0 {
		close(q.idle)
	}
}

// Close stops accepting new items. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Discard drops every queued item that has not been popped and returns how many were
// dropped. Dropped items count as done.
func (q *Queue[T]) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items) - q.head
	var zero T
	for i := q.head; i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = q.items[:0]
	q.head = 0
	if n > 0 {
		q.pending -= n
		if q.pending == 0 {
			close(q.idle)
		}
	}
	return n
}

// Len returns the number of items waiting to be popped.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Pending returns the number of pushed items not yet marked done.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// WaitIdle blocks until every pushed item has been marked done or ctx ends.
func (q *Queue[T]) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
