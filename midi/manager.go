package midi

import (
	"context"
	"slices"
	"sync"
	"time"

	"go-daw/debug"
)

// PortEvent is emitted when a port appears or disappears.
type PortEvent struct {
	Type PortEventType
	Dir  Direction
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Watcher polls the driver and reports port hot-plug.
type Watcher struct {
	mu       sync.RWMutex
	ins      []string
	outs     []string
	events   chan PortEvent
	pollRate time.Duration
	list     func() (ins, outs []string, err error)
}

// NewWatcher creates a watcher that polls every second.
func NewWatcher() *Watcher {
	return &Watcher{
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
		list:     ListPorts,
	}
}

// Events returns port connect/disconnect events. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan PortEvent {
	return w.events
}

// Ports returns the last seen port names.
func (w *Watcher) Ports() (ins, outs []string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.ins), slices.Clone(w.outs)
}

// Run polls until ctx is done (blocking - run in goroutine).
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	ins, outs, err := w.list()
	if err != nil {
		// skip this scan; a hung driver may answer next time
		debug.LogEvery(30, "midi", "port scan: %v", err)
		return
	}

	w.mu.Lock()
	var evs []PortEvent
	evs = appendDiff(evs, In, w.ins, ins)
	evs = appendDiff(evs, Out, w.outs, outs)
	w.ins, w.outs = ins, outs
	w.mu.Unlock()

	for _, ev := range evs {
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func appendDiff(evs []PortEvent, dir Direction, old, now []string) []PortEvent {
	for _, n := range now {
		if !slices.Contains(old, n) {
			evs = append(evs, PortEvent{Type: PortConnected, Dir: dir, Name: n})
		}
	}
	for _, o := range old {
		if !slices.Contains(now, o) {
			evs = append(evs, PortEvent{Type: PortDisconnected, Dir: dir, Name: o})
		}
	}
	return evs
}
