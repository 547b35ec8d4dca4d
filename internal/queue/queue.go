// Package queue provides the mutex-guarded FIFO used to hand work from hook
// goroutines to the tick boundary and to background writers.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. A queue created with WithLimit drops
// its oldest items instead of growing past the limit.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped uint64
}

// Option configures a Queue.
type Option func(*queueConfig)

type queueConfig struct {
	limit int
}

// WithLimit caps the number of queued items. Zero means unbounded.
func WithLimit(n int) Option {
	return func(c *queueConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// New creates a new empty queue.
func New[T any](opts ...Option) *Queue[T] {
	var cfg queueConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue[T]{
		items: make([]T, 0),
		limit: cfg.limit,
	}
}

// Push appends items to the queue and returns how many old items were
// dropped to stay within the limit.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.limit == 0 || len(q.items) <= q.limit {
		return 0
	}
	over := len(q.items) - q.limit
	var zero T
	for i := range over {
		q.items[i] = zero
	}
	q.items = q.items[over:]
	q.dropped += uint64(over)
	return over
}

// Pop removes and returns the first item. ok is false if the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of items discarded by the limit.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// GetAndEmpty returns all items in FIFO order and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
