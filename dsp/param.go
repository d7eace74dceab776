package dsp

import (
	"math"
	"slices"
	"sync/atomic"
)

// ParamKind is the value type of a block parameter.
type ParamKind int

const (
	ParamFloat ParamKind = iota
	ParamInt
	ParamBool
)

func (k ParamKind) String() string {
	switch k {
	case ParamFloat:
		return "float"
	case ParamInt:
		return "int"
	case ParamBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParamDescriptor is static metadata for one tunable of a block. Parameters
// are addressed by their index in Block.Params.
type ParamDescriptor struct {
	Name    string    `json:"name"`
	Kind    ParamKind `json:"kind"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Default float64   `json:"default"`
	Hint    string    `json:"hint,omitempty"` // UI control hint: "knob", "slider", "toggle", "hz", "db", "ms"
}

// normalize clamps v into range and snaps it to the parameter kind.
func (d ParamDescriptor) normalize(v float64) float64 {
	if math.IsNaN(v) {
		return d.Default
	}
	switch d.Kind {
	case ParamInt:
		v = math.Round(v)
	case ParamBool:
		if v >= 0.5 {
			return 1
		}
		return 0
	}
	return math.Max(d.Min, math.Min(d.Max, v))
}

// params stores parameter values as individually atomic float64 bits, so a
// control goroutine can write while Process reads without the chain lock.
type params struct {
	desc    []ParamDescriptor
	vals    []atomic.Uint64
	version atomic.Uint64 // bumped on every write
}

func (p *params) init(desc []ParamDescriptor) {
	p.desc = desc
	p.vals = make([]atomic.Uint64, len(desc))
	for i, d := range desc {
		p.vals[i].Store(math.Float64bits(d.normalize(d.Default)))
	}
}

// Params returns a copy of the parameter descriptors.
func (p *params) Params() []ParamDescriptor {
	return slices.Clone(p.desc)
}

// Param returns the current value of parameter i.
func (p *params) Param(i int) (float64, bool) {
	if i < 0 || i >= len(p.vals) {
		return 0, false
	}
	return math.Float64frombits(p.vals[i].Load()), true
}

// SetParam writes parameter i. Out-of-range indexes are ignored.
func (p *params) SetParam(i int, v float64) bool {
	if i < 0 || i >= len(p.vals) {
		return false
	}
	p.vals[i].Store(math.Float64bits(p.desc[i].normalize(v)))
	p.version.Add(1)
	return true
}

func (p *params) get(i int) float64 {
	return math.Float64frombits(p.vals[i].Load())
}

// base carries the parameter store and active flag shared by every built-in
// block.
type base struct {
	params
	active atomic.Bool
}

func (b *base) init(desc ...ParamDescriptor) {
	b.params.init(desc)
	b.active.Store(true)
}

func (b *base) Active() bool {
	return b.active.Load()
}

func (b *base) SetActive(active bool) {
	b.active.Store(active)
}

// changed reports whether parameters were written since *seen and updates it.
func (b *base) changed(seen *uint64) bool {
	v := b.version.Load()
	if v == *seen {
		return false
	}
	*seen = v
	return true
}
