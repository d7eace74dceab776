package dsp

import "math"

const (
	TypeEQ      = "eq"
	TypeLowPass = "lowpass"
)

const (
	EQFreq = iota
	EQGainDB
	EQQ
)

// EQ is a single peaking band, one biquad per channel.
type EQ struct {
	base
	sampleRate float64
	seen       uint64
	l, r       biquad
}

// NewEQ creates a flat peaking band at 1 kHz.
func NewEQ(sampleRate float64) *EQ {
	e := &EQ{sampleRate: sampleRate}
	e.base.init(
		ParamDescriptor{Name: "freq", Kind: ParamFloat, Min: 20, Max: 20000, Default: 1000, Hint: "hz"},
		ParamDescriptor{Name: "gain_db", Kind: ParamFloat, Min: -24, Max: 24, Default: 0, Hint: "db"},
		ParamDescriptor{Name: "q", Kind: ParamFloat, Min: 0.1, Max: 18, Default: 0.707, Hint: "knob"},
	)
	e.update()
	e.seen = e.version.Load()
	return e
}

func (e *EQ) TypeName() string { return TypeEQ }

func (e *EQ) update() {
	freq := nyquistClamp(e.get(EQFreq), e.sampleRate)
	gain, q := e.get(EQGainDB), e.get(EQQ)
	e.l.peaking(e.sampleRate, freq, gain, q)
	e.r.peaking(e.sampleRate, freq, gain, q)
}

func (e *EQ) Process(left, right []float32) {
	if e.changed(&e.seen) {
		e.update()
	}
	for i := range left {
		left[i] = float32(e.l.process(float64(left[i])))
	}
	for i := range right {
		right[i] = float32(e.r.process(float64(right[i])))
	}
}

func (e *EQ) Reset() {
	e.l.reset()
	e.r.reset()
}

const LowPassCutoff = 0

// LowPass is a second-order Butterworth low-pass filter.
type LowPass struct {
	base
	sampleRate float64
	seen       uint64
	l, r       biquad
}

// NewLowPass creates a low-pass filter with its cutoff at 20 kHz.
func NewLowPass(sampleRate float64) *LowPass {
	f := &LowPass{sampleRate: sampleRate}
	f.base.init(
		ParamDescriptor{Name: "cutoff", Kind: ParamFloat, Min: 20, Max: 20000, Default: 20000, Hint: "hz"},
	)
	f.update()
	f.seen = f.version.Load()
	return f
}

func (f *LowPass) TypeName() string { return TypeLowPass }

func (f *LowPass) update() {
	cutoff := nyquistClamp(f.get(LowPassCutoff), f.sampleRate)
	f.l.lowPass(f.sampleRate, cutoff, 1/math.Sqrt2)
	f.r.lowPass(f.sampleRate, cutoff, 1/math.Sqrt2)
}

func (f *LowPass) Process(left, right []float32) {
	if f.changed(&f.seen) {
		f.update()
	}
	for i := range left {
		left[i] = float32(f.l.process(float64(left[i])))
	}
	for i := range right {
		right[i] = float32(f.r.process(float64(right[i])))
	}
}

func (f *LowPass) Reset() {
	f.l.reset()
	f.r.reset()
}
