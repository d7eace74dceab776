// Package audio owns the output device and the real-time callback that pulls
// rendered blocks from the engine.
package audio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNoDevice       = errors.New("audio: no output device could be opened")
	ErrRunning        = errors.New("audio: already started")
	ErrUnknownBackend = errors.New("audio: unknown backend")
)

// Device describes one output device a backend can open.
type Device struct {
	ID       string
	Name     string
	Channels int // maximum output channels
	Default  bool
}

// StreamConfig is what the worker asks a backend for.
type StreamConfig struct {
	SampleRate int
	BlockSize  int // frames per callback, a hint for pull-model backends
	Channels   int
}

// Callback fills out with interleaved frames of StreamConfig.Channels
// samples. It runs on the device thread and must not block.
type Callback func(out []float32)

// Stream is an opened device stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Running() bool
}

// Backend is a platform audio API.
type Backend interface {
	Name() string
	Devices() ([]Device, error)
	Open(dev Device, cfg StreamConfig, cb Callback) (Stream, error)
}

// Renderer produces interleaved stereo. *engine.Engine implements it.
type Renderer interface {
	Render(out []float32, frames int, applyDSP bool)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]func() (Backend, error){}
)

// priority for "auto", best first
var autoOrder = []string{"portaudio", "oto", "null"}

func register(name string, ctor func() (Backend, error)) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = ctor
}

// Backends lists the backends compiled into this binary.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// OpenBackend creates the named backend. "auto" or "" picks the first one
// in priority order that initialises.
func OpenBackend(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	if name != "" && name != "auto" {
		ctor, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}
		return ctor()
	}
	var errs []error
	for _, n := range autoOrder {
		ctor, ok := backends[n]
		if !ok {
			continue
		}
		b, err := ctor()
		if err == nil {
			return b, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", n, err))
	}
	return nil, errors.Join(errs...)
}

func init() {
	register("null", func() (Backend, error) { return NewNullBackend(), nil })
}
