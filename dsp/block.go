// Package dsp holds the effect blocks and the ordered chains that cascade
// them over a stereo buffer.
package dsp

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

var (
	ErrUnknownType = errors.New("dsp: unknown block type")
	ErrNotFound    = errors.New("dsp: block not in chain")
	ErrIndex       = errors.New("dsp: index out of range")
)

// Block is one stateful audio effect. Process works in place on equally
// sized left and right buffers. Implementations keep their filter state
// private; only the goroutine running Process touches it.
type Block interface {
	// TypeName is the stable name used by the registry and presets.
	TypeName() string

	Params() []ParamDescriptor
	Param(i int) (float64, bool)
	// SetParam ignores out-of-range indexes and returns false for them.
	SetParam(i int, v float64) bool

	Active() bool
	SetActive(active bool)

	Process(left, right []float32)
}

// Resetter is implemented by blocks that can clear their internal state.
type Resetter interface {
	Reset()
}

// Constructor builds a block for the given sample rate.
type Constructor func(sampleRate float64) Block

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a block type. Registering an existing name replaces it.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New creates a block by type name.
func New(name string, sampleRate float64) (Block, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return ctor(sampleRate), nil
}

// Types returns the registered type names, sorted.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamIndex looks up a parameter index by name, -1 if the block has none.
func ParamIndex(b Block, name string) int {
	return slices.IndexFunc(b.Params(), func(d ParamDescriptor) bool {
		return d.Name == name
	})
}

func init() {
	Register(TypeGain, func(float64) Block { return NewGain(1) })
	Register(TypeEQ, func(sr float64) Block { return NewEQ(sr) })
	Register(TypeLowPass, func(sr float64) Block { return NewLowPass(sr) })
	Register(TypeCompressor, func(sr float64) Block { return NewCompressor(sr) })
	Register(TypeDelay, func(sr float64) Block { return NewDelay(sr) })
	Register(TypeReverb, func(sr float64) Block { return NewReverb(sr) })
}
