package sequencer

import (
	"sync"
	"time"
)

// NoteEvent is one note boundary crossing emitted by the scheduler.
type NoteEvent struct {
	NoteID   int
	Track    int // lane index, see Scheduler.Lanes
	Channel  uint8
	Pitch    uint8
	Velocity uint8
	Start    int64
	Length   int64
	Tick     int64 // boundary tick: Start for on, End for off
	On       bool
}

// Dispatcher receives scheduled events. Dispatch must not block; a false
// return means the event was dropped.
type Dispatcher interface {
	Dispatch(track int, ev NoteEvent) bool
	AllNotesOff(track int)
}

// DispatchFunc adapts a function to Dispatcher, with AllNotesOff a no-op.
type DispatchFunc func(track int, ev NoteEvent) bool

func (f DispatchFunc) Dispatch(track int, ev NoteEvent) bool { return f(track, ev) }
func (f DispatchFunc) AllNotesOff(int)                       {}

// Clock is the scheduler's time source. It must be monotonic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// time.Now carries a monotonic reading, so Sub is immune to wall clock jumps
func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock.
var SystemClock Clock = systemClock{}

// ManualClock only moves when told to. Offline rendering and tests use it.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
