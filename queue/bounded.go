// Package queue provides the lock-free bounded queue used to move note and
// analysis messages between goroutines, and the Worker that drains one.
package queue

import (
	"errors"
	"sync/atomic"
)

// ErrCapacity is returned when a queue is created with a capacity that is not
// a power of two >= 2.
var ErrCapacity = errors.New("queue: capacity must be a power of two >= 2")

// cacheLine is used to keep the producer and consumer cursors apart.
const cacheLine = 64

// slot is one ring entry. seq is the ticket that tells producers and
// consumers whether the slot is free or holds a value for them.
type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// Bounded is a fixed-capacity multi-producer/multi-consumer ring buffer
// (Vyukov's bounded MPMC queue). It never blocks and never allocates after
// construction.
type Bounded[T any] struct {
	_    [cacheLine]byte
	head atomic.Uint64 // next enqueue position
	_    [cacheLine - 8]byte
	tail atomic.Uint64 // next dequeue position
	_    [cacheLine - 8]byte

	mask  uint64
	slots []slot[T]
}

// NewBounded creates a queue holding up to capacity items.
func NewBounded[T any](capacity int) (*Bounded[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacity
	}
	q := &Bounded[T]{
		mask:  uint64(capacity - 1),
		slots: make([]slot[T], capacity),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q, nil
}

// Enqueue adds v to the queue. It returns false without blocking or
// overwriting anything when the queue is full.
func (q *Bounded[T]) Enqueue(v T) bool {
	pos := q.head.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch dif := int64(seq) - int64(pos); {
		case dif == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				s.val = v
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.head.Load()
		case dif < 0:
			// slot still holds an item from the previous lap
			return false
		default:
			pos = q.head.Load()
		}
	}
}

// Dequeue removes the oldest item. ok is false when the queue is empty.
func (q *Bounded[T]) Dequeue() (v T, ok bool) {
	pos := q.tail.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch dif := int64(seq) - int64(pos+1); {
		case dif == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				v = s.val
				var zero T
				s.val = zero
				s.seq.Store(pos + q.mask + 1)
				return v, true
			}
			pos = q.tail.Load()
		case dif < 0:
			return v, false
		default:
			pos = q.tail.Load()
		}
	}
}

// Len returns the number of queued items. The value may be stale by the time
// the caller looks at it.
func (q *Bounded[T]) Len() int {
	tail := q.tail.Load()
	head := q.head.Load()
	if head <= tail {
		return 0
	}
	n := head - tail
	if n > q.mask+1 {
		n = q.mask + 1
	}
	return int(n)
}

// Empty reports whether the queue looked empty.
func (q *Bounded[T]) Empty() bool {
	return q.Len() == 0
}

// Cap returns the fixed capacity.
func (q *Bounded[T]) Cap() int {
	return len(q.slots)
}
