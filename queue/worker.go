package queue

import (
	"sync"
	"sync/atomic"
)

// Mode selects who drains a Worker's queue.
type Mode int32

const (
	// ModeAutomatic drains on the worker's own goroutine.
	ModeAutomatic Mode = iota
	// ModeManual parks the goroutine; the caller drains with ProcessQueue.
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeAutomatic:
		return "automatic"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Worker pairs a Bounded queue with a background goroutine that calls onItem
// for every dequeued value.
//
// A single condition variable wakes the goroutine for new data, for mode
// changes and for shutdown.
type Worker[T any] struct {
	q      *Bounded[T]
	onItem func(T)

	mu     sync.Mutex
	cond   *sync.Cond
	mode   Mode
	busy   bool // background goroutine is draining
	closed bool

	manual  atomic.Bool // mirror of mode, read between items
	dropped atomic.Uint64
	done    chan struct{}
}

// NewWorker creates a worker in automatic mode and starts its goroutine.
func NewWorker[T any](capacity int, onItem func(T)) (*Worker[T], error) {
	q, err := NewBounded[T](capacity)
	if err != nil {
		return nil, err
	}
	w := &Worker[T]{
		q:      q,
		onItem: onItem,
		done:   make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w, nil
}

// Push queues v. It returns false when the queue is full; the item is dropped
// and counted, never escalated.
func (w *Worker[T]) Push(v T) bool {
	if !w.q.Enqueue(v) {
		w.dropped.Add(1)
		return false
	}
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
	return true
}

// Dropped returns how many pushes failed because the queue was full.
func (w *Worker[T]) Dropped() uint64 {
	return w.dropped.Load()
}

// Len returns the number of queued items.
func (w *Worker[T]) Len() int {
	return w.q.Len()
}

// Mode returns the current operating mode.
func (w *Worker[T]) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// EnterManualMode parks the background goroutine. It returns once the
// goroutine is no longer inside onItem, so afterwards only ProcessQueue
// callers consume items. It must not be called from onItem.
func (w *Worker[T]) EnterManualMode() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = ModeManual
	w.manual.Store(true)
	w.cond.Broadcast()
	for w.busy {
		w.cond.Wait()
	}
}

// ExitManualMode hands draining back to the background goroutine.
func (w *Worker[T]) ExitManualMode() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = ModeAutomatic
	w.manual.Store(false)
	w.cond.Broadcast()
}

// ProcessQueue drains every queued item on the calling goroutine and returns
// how many were processed. Intended for manual mode.
func (w *Worker[T]) ProcessQueue() int {
	n := 0
	for {
		v, ok := w.q.Dequeue()
		if !ok {
			return n
		}
		w.onItem(v)
		n++
	}
}

// Shutdown stops and joins the background goroutine. Items still queued are
// discarded. Calling it again is a no-op.
func (w *Worker[T]) Shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *Worker[T]) run() {
	defer close(w.done)

	w.mu.Lock()
	for {
		for !w.closed && (w.mode == ModeManual || w.q.Empty()) {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.busy = true
		w.mu.Unlock()

		w.drain()

		w.mu.Lock()
		w.busy = false
		w.cond.Broadcast()
	}
}

// drain consumes items until the queue is empty or manual mode is requested.
func (w *Worker[T]) drain() {
	for !w.manual.Load() {
		v, ok := w.q.Dequeue()
		if !ok {
			return
		}
		w.onItem(v)
	}
}
