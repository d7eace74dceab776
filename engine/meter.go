package engine

import (
	"math"
	"sync/atomic"
)

// MinDB is the floor reported for silence.
const MinDB = -100

// peakRelease is the time for a held peak to fall by 1/e.
const peakRelease = 0.3 // seconds

// Levels is one snapshot of the output meters, linear amplitude.
type Levels struct {
	PeakL, PeakR float32
	RMSL, RMSR   float32
}

// meter is written only by the render goroutine and read by anyone.
type meter struct {
	sampleRate float64
	peakL      atomic.Uint32
	peakR      atomic.Uint32
	rmsL       atomic.Uint32
	rmsR       atomic.Uint32
}

func (m *meter) init(sampleRate float64) {
	m.sampleRate = sampleRate
}

// update folds one block into the meters: peaks rise at once and decay
// exponentially, RMS covers the block alone.
func (m *meter) update(left, right []float32) {
	if len(left) == 0 {
		return
	}
	pl, sl := blockStats(left)
	pr, sr := blockStats(right)

	fall := float32(math.Exp(-float64(len(left)) / (m.sampleRate * peakRelease)))
	pl = max(pl, math.Float32frombits(m.peakL.Load())*fall)
	pr = max(pr, math.Float32frombits(m.peakR.Load())*fall)

	m.peakL.Store(math.Float32bits(pl))
	m.peakR.Store(math.Float32bits(pr))
	m.rmsL.Store(math.Float32bits(sl))
	m.rmsR.Store(math.Float32bits(sr))
}

func blockStats(x []float32) (peak, rms float32) {
	if len(x) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range x {
		a := float32(math.Abs(float64(v)))
		peak = max(peak, a)
		sum += float64(v) * float64(v)
	}
	return peak, float32(math.Sqrt(sum / float64(len(x))))
}

func (m *meter) levels() Levels {
	return Levels{
		PeakL: math.Float32frombits(m.peakL.Load()),
		PeakR: math.Float32frombits(m.peakR.Load()),
		RMSL:  math.Float32frombits(m.rmsL.Load()),
		RMSR:  math.Float32frombits(m.rmsR.Load()),
	}
}

func (m *meter) reset() {
	m.peakL.Store(0)
	m.peakR.Store(0)
	m.rmsL.Store(0)
	m.rmsR.Store(0)
}

// ToDB converts a linear amplitude to dBFS, floored at MinDB.
func ToDB(v float32) float32 {
	if v <= 0 {
		return MinDB
	}
	return float32(max(MinDB, 20*math.Log10(float64(v))))
}

// GetCurrentVolumeDB returns the held peak of each output channel in dBFS.
func (e *Engine) GetCurrentVolumeDB() (left, right float32) {
	lv := e.meter.levels()
	return ToDB(lv.PeakL), ToDB(lv.PeakR)
}

// Levels returns the peak and RMS of both output channels.
func (e *Engine) Levels() Levels {
	return e.meter.levels()
}

// ResetMeters zeroes the meters, for instance after a stop.
func (e *Engine) ResetMeters() {
	e.meter.reset()
}
