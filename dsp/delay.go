package dsp

import "math"

const TypeDelay = "delay"

const (
	DelayTimeMs = iota
	DelayFeedback
	DelayMix
)

// maxDelaySeconds bounds the delay line, which is allocated once.
const maxDelaySeconds = 2

// Delay is a feedback echo with a per-channel ring buffer.
type Delay struct {
	base
	sampleRate float64
	l, r       []float32
	pos        int
}

// NewDelay creates a 250 ms echo.
func NewDelay(sampleRate float64) *Delay {
	n := int(math.Ceil(sampleRate*maxDelaySeconds)) + 1
	d := &Delay{
		sampleRate: sampleRate,
		l:          make([]float32, n),
		r:          make([]float32, n),
	}
	d.base.init(
		ParamDescriptor{Name: "time_ms", Kind: ParamFloat, Min: 1, Max: maxDelaySeconds * 1000, Default: 250, Hint: "ms"},
		ParamDescriptor{Name: "feedback", Kind: ParamFloat, Min: 0, Max: 0.95, Default: 0.4, Hint: "knob"},
		ParamDescriptor{Name: "mix", Kind: ParamFloat, Min: 0, Max: 1, Default: 0.3, Hint: "knob"},
	)
	return d
}

func (d *Delay) TypeName() string { return TypeDelay }

func (d *Delay) Process(left, right []float32) {
	size := len(d.l)
	lag := int(d.get(DelayTimeMs) * d.sampleRate / 1000)
	lag = max(1, min(lag, size-1))
	fb := float32(d.get(DelayFeedback))
	mix := float32(d.get(DelayMix))

	n := min(len(left), len(right))
	for i := 0; i < n; i++ {
		read := d.pos - lag
		if read < 0 {
			read += size
		}
		el, er := d.l[read], d.r[read]
		d.l[d.pos] = left[i] + el*fb
		d.r[d.pos] = right[i] + er*fb
		left[i] = left[i]*(1-mix) + el*mix
		right[i] = right[i]*(1-mix) + er*mix

		d.pos++
		if d.pos == size {
			d.pos = 0
		}
	}
}

func (d *Delay) Reset() {
	clear(d.l)
	clear(d.r)
	d.pos = 0
}
