package sequencer

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

var (
	ErrTempoOrder = errors.New("sequencer: tempo points must be strictly increasing in tick")
	ErrTempoValue = errors.New("sequencer: tempo BPM must be positive and finite")
)

// Interp is how the tempo approaches a point from the previous one.
type Interp int

const (
	// Step jumps to the point's BPM at its tick.
	Step Interp = iota
	// Linear ramps from the previous point's BPM to this one.
	Linear
)

func (i Interp) String() string {
	if i == Linear {
		return "linear"
	}
	return "step"
}

// TempoPoint is one tempo change.
type TempoPoint struct {
	Tick   int64
	BPM    float64
	Interp Interp
}

// TempoCurve is a piecewise tempo map over ticks. It is immutable.
type TempoCurve struct {
	points []TempoPoint
}

// NewTempoCurve validates and wraps points.
func NewTempoCurve(points ...TempoPoint) (*TempoCurve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrTempoValue)
	}
	for i, p := range points {
		if p.BPM <= 0 || math.IsNaN(p.BPM) || math.IsInf(p.BPM, 0) {
			return nil, fmt.Errorf("%w: point %d has %v", ErrTempoValue, i, p.BPM)
		}
		if p.Tick < 0 || (i > 0 && p.Tick <= points[i-1].Tick) {
			return nil, fmt.Errorf("%w: point %d at tick %d", ErrTempoOrder, i, p.Tick)
		}
	}
	return &TempoCurve{points: slices.Clone(points)}, nil
}

// ConstantTempo returns a single-point curve.
func ConstantTempo(bpm float64) *TempoCurve {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		bpm = 120
	}
	return &TempoCurve{points: []TempoPoint{{Tick: 0, BPM: bpm}}}
}

// Points returns a copy of the curve's points.
func (c *TempoCurve) Points() []TempoPoint {
	return slices.Clone(c.points)
}

// Constant reports whether the tempo never changes.
func (c *TempoCurve) Constant() bool {
	return len(c.points) == 1
}

// BPMAt returns the effective tempo at tick: the last point at or before
// tick, interpolated towards the next point when that one is Linear.
func (c *TempoCurve) BPMAt(tick int64) float64 {
	i := sort.Search(len(c.points), func(i int) bool { return c.points[i].Tick > tick }) - 1
	if i < 0 {
		return c.points[0].BPM
	}
	p := c.points[i]
	if i+1 < len(c.points) {
		next := c.points[i+1]
		if next.Interp == Linear {
			frac := float64(tick-p.Tick) / float64(next.Tick-p.Tick)
			return p.BPM + (next.BPM-p.BPM)*frac
		}
	}
	return p.BPM
}

// Duration returns the wall time between two ticks at the given PPQ.
func (c *TempoCurve) Duration(from, to int64, ppq int) time.Duration {
	if to <= from {
		return 0
	}
	var ms float64
	if c.Constant() {
		ms = float64(to-from) * MsPerTick(c.points[0].BPM, ppq)
	} else {
		for t := from; t < to; t++ {
			ms += MsPerTick(c.BPMAt(t), ppq)
		}
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// MsPerTick is 60000 / (bpm * ppq).
func MsPerTick(bpm float64, ppq int) float64 {
	return 60000 / (bpm * float64(ppq))
}

// MicrosToBPM converts an SMF tempo (microseconds per quarter) to BPM.
func MicrosToBPM(micros int) float64 {
	if micros <= 0 {
		micros = DefaultMicrosPerQuarter
	}
	return 60e6 / float64(micros)
}
