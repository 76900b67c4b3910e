// Package spsc provides a lock-free bounded queue for exactly one producer
// goroutine and one consumer goroutine, and a consumer loop built on it.
package spsc

import "sync/atomic"

// Queue is a ring buffer with N slots of which N-1 are usable. Push must
// only be called from the producer and Pull only from the consumer.
type Queue[T any] struct {
	slots []T
	// head is the next slot to read, written only by the consumer.
	head atomic.Uint64
	// tail is the next slot to write, written only by the producer.
	tail atomic.Uint64
}

// New returns a queue with size slots, holding at most size-1 values.
// It panics if size is smaller than 2.
func New[T any](size int) *Queue[T] {
	if size < 2 {
		panic("spsc: queue size must be at least 2")
	}
	return &Queue[T]{slots: make([]T, size)}
}

func (q *Queue[T]) next(i uint64) uint64 {
	i++
	if i == uint64(len(q.slots)) {
		return 0
	}
	return i
}

// Push appends v and reports false without blocking when the queue is full.
func (q *Queue[T]) Push(v T) bool {
	tail := q.tail.Load()
	next := q.next(tail)
	if next == q.head.Load() {
		return false
	}
	q.slots[tail] = v
	q.tail.Store(next)
	return true
}

// Pull removes the oldest value and reports false without blocking when the
// queue is empty.
func (q *Queue[T]) Pull() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	v := q.slots[head]
	q.slots[head] = zero
	q.head.Store(q.next(head))
	return v, true
}

// Len returns a snapshot of the number of queued values.
func (q *Queue[T]) Len() int {
	head, tail := q.head.Load(), q.tail.Load()
	if tail >= head {
		return int(tail - head)
	}
	return len(q.slots) - int(head-tail)
}

// Cap returns the number of values the queue can hold.
func (q *Queue[T]) Cap() int {
	return len(q.slots) - 1
}
