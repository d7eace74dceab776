package synth

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go-daw/debug"
	"go-daw/queue"
	"go-daw/sequencer"
)

var ErrLane = errors.New("synth: negative lane")

type message struct {
	ev     sequencer.NoteEvent
	allOff bool
}

type route struct {
	synth  Synth
	pan    float32
	worker *queue.Worker[message]
}

// Router implements sequencer.Dispatcher. Each scheduler lane gets its own
// queue worker, which calls the lane's synth off the scheduler goroutine.
type Router struct {
	capacity int

	mu     sync.RWMutex
	routes []*route // indexed by lane, nil when unrouted
	manual bool
	missed atomic.Uint64
}

// NewRouter creates a router whose lane queues hold capacity events each.
// capacity must be a power of two.
func NewRouter(capacity int) (*Router, error) {
	if _, err := queue.NewBounded[message](capacity); err != nil {
		return nil, err
	}
	return &Router{capacity: capacity}, nil
}

// Route sends lane's events to s. An existing route for lane is replaced and
// its worker shut down.
func (r *Router) Route(lane int, s Synth, pan float32) error {
	if lane < 0 {
		return ErrLane
	}
	rt := &route{synth: s, pan: pan}
	w, err := queue.NewWorker(r.capacity, rt.handle)
	if err != nil {
		return fmt.Errorf("route lane %d: %w", lane, err)
	}
	rt.worker = w

	r.mu.Lock()
	if r.manual {
		w.EnterManualMode()
	}
	for len(r.routes) <= lane {
		r.routes = append(r.routes, nil)
	}
	old := r.routes[lane]
	r.routes[lane] = rt
	r.mu.Unlock()

	if old != nil {
		old.worker.Shutdown()
	}
	debug.Log("router", "lane %d routed", lane)
	return nil
}

// Unroute removes lane's route. It reports whether one existed.
func (r *Router) Unroute(lane int) bool {
	r.mu.Lock()
	if lane < 0 || lane >= len(r.routes) || r.routes[lane] == nil {
		r.mu.Unlock()
		return false
	}
	old := r.routes[lane]
	r.routes[lane] = nil
	r.mu.Unlock()

	old.worker.Shutdown()
	return true
}

// Lanes returns how many lane slots exist, routed or not.
func (r *Router) Lanes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

func (r *Router) lookup(lane int) *route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if lane < 0 || lane >= len(r.routes) {
		return nil
	}
	return r.routes[lane]
}

// Dispatch queues ev for lane. It returns false when the lane has no synth
// or its queue is full; the event is dropped either way.
func (r *Router) Dispatch(lane int, ev sequencer.NoteEvent) bool {
	rt := r.lookup(lane)
	if rt == nil {
		r.missed.Add(1)
		debug.LogEvery(100, "router", "no synth for lane %d, event skipped", lane)
		return false
	}
	return rt.worker.Push(message{ev: ev})
}

// AllNotesOff queues a release of everything on lane behind its pending
// events.
func (r *Router) AllNotesOff(lane int) {
	if rt := r.lookup(lane); rt != nil {
		rt.worker.Push(message{allOff: true})
	}
}

func (rt *route) handle(m message) {
	switch {
	case m.allOff:
		rt.synth.StopAllNotes(AllChannels)
	case m.ev.On:
		rt.synth.PlayNote(m.ev.Pitch, m.ev.Velocity, m.ev.Channel, rt.pan)
	default:
		rt.synth.StopNote(m.ev.Pitch)
	}
}

func (r *Router) snapshot() []*route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*route, 0, len(r.routes))
	for _, rt := range r.routes {
		if rt != nil {
			out = append(out, rt)
		}
	}
	return out
}

// EnterManualMode parks every lane worker; events then wait for
// ProcessQueues. Lanes routed later start parked too.
func (r *Router) EnterManualMode() {
	r.mu.Lock()
	r.manual = true
	r.mu.Unlock()
	for _, rt := range r.snapshot() {
		rt.worker.EnterManualMode()
	}
}

// ExitManualMode hands every lane back to its background worker.
func (r *Router) ExitManualMode() {
	r.mu.Lock()
	r.manual = false
	r.mu.Unlock()
	for _, rt := range r.snapshot() {
		rt.worker.ExitManualMode()
	}
}

// ProcessQueues drains every lane on the calling goroutine, in lane order,
// and returns the number of events delivered.
func (r *Router) ProcessQueues() int {
	n := 0
	for _, rt := range r.snapshot() {
		n += rt.worker.ProcessQueue()
	}
	return n
}

// Dropped counts events lost to full lane queues plus events for unrouted
// lanes.
func (r *Router) Dropped() uint64 {
	n := r.missed.Load()
	for _, rt := range r.snapshot() {
		n += rt.worker.Dropped()
	}
	return n
}

// Close shuts every lane worker down and removes all routes.
func (r *Router) Close() {
	r.mu.Lock()
	routes := r.routes
	r.routes = nil
	r.mu.Unlock()
	for _, rt := range routes {
		if rt != nil {
			rt.worker.Shutdown()
		}
	}
}
