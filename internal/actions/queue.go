package actions

import (
	"github.com/iotaledger/hive.go/ds/ringbuffer"
)

// boundedQueue is a FIFO that drops its oldest element once full.
// Callers serialise access through the dispatcher mutex.
type boundedQueue[T any] struct {
	ring     *ringbuffer.RingBuffer[T]
	capacity int
	size     int
}

func newBoundedQueue[T any](capacity int) *boundedQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &boundedQueue[T]{ring: ringbuffer.NewRingBuffer[T](capacity), capacity: capacity}
}

// push appends v and reports whether an element was evicted.
func (q *boundedQueue[T]) push(v T) bool {
	evicted := q.size == q.capacity
	q.ring.Add(v)
	if !evicted {
		q.size++
	}
	return evicted
}

// snapshot returns the elements oldest first. The ring lists newest first.
func (q *boundedQueue[T]) snapshot() []T {
	items := q.ring.ToSlice()
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

func (q *boundedQueue[T]) len() int {
	return q.size
}
