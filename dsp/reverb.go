package dsp

const TypeReverb = "reverb"

const (
	ReverbMix = iota
	ReverbDecay
)

// Comb and allpass lengths are prime sample counts at 44.1 kHz so the echoes
// do not line up; the right channel is offset by reverbSpread.
var (
	combLengths    = [4]int{1687, 1601, 2053, 2251}
	combScale      = [4]float32{1.0, 0.98, 0.96, 0.94}
	allpassLengths = [2]int{389, 307}
)

const (
	allpassCoef  = 0.5
	reverbSpread = 23
	reverbWetAtt = 0.3
)

type comb struct {
	buf []float32
	pos int
}

func (c *comb) process(x, decay float32) float32 {
	out := c.buf[c.pos]
	c.buf[c.pos] = x + out*decay
	c.pos++
	if c.pos == len(c.buf) {
		c.pos = 0
	}
	return out
}

type allpass struct {
	buf []float32
	pos int
}

func (a *allpass) process(x float32) float32 {
	d := a.buf[a.pos]
	a.buf[a.pos] = x + d*allpassCoef
	a.pos++
	if a.pos == len(a.buf) {
		a.pos = 0
	}
	return d - x
}

type reverbLine struct {
	combs  [4]comb
	passes [2]allpass
}

func newReverbLine(scale float64, spread int) reverbLine {
	var l reverbLine
	for i, n := range combLengths {
		l.combs[i].buf = make([]float32, max(1, int(float64(n)*scale)+spread))
	}
	for i, n := range allpassLengths {
		l.passes[i].buf = make([]float32, max(1, int(float64(n)*scale)+spread))
	}
	return l
}

func (l *reverbLine) process(x, decay float32) float32 {
	var out float32
	for i := range l.combs {
		out += l.combs[i].process(x, decay*combScale[i])
	}
	for i := range l.passes {
		out = l.passes[i].process(out)
	}
	return out * reverbWetAtt
}

func (l *reverbLine) reset() {
	for i := range l.combs {
		clear(l.combs[i].buf)
		l.combs[i].pos = 0
	}
	for i := range l.passes {
		clear(l.passes[i].buf)
		l.passes[i].pos = 0
	}
}

// Reverb is a Schroeder reverb: four parallel combs into two series
// allpasses per channel.
type Reverb struct {
	base
	l, r reverbLine
}

// NewReverb creates a reverb with delay lines scaled to sampleRate.
func NewReverb(sampleRate float64) *Reverb {
	scale := sampleRate / 44100
	rv := &Reverb{
		l: newReverbLine(scale, 0),
		r: newReverbLine(scale, reverbSpread),
	}
	rv.base.init(
		ParamDescriptor{Name: "mix", Kind: ParamFloat, Min: 0, Max: 1, Default: 0.25, Hint: "knob"},
		ParamDescriptor{Name: "decay", Kind: ParamFloat, Min: 0.1, Max: 0.98, Default: 0.84, Hint: "knob"},
	)
	return rv
}

func (rv *Reverb) TypeName() string { return TypeReverb }

func (rv *Reverb) Process(left, right []float32) {
	mix := float32(rv.get(ReverbMix))
	decay := float32(rv.get(ReverbDecay))

	n := min(len(left), len(right))
	for i := 0; i < n; i++ {
		in := (left[i] + right[i]) * 0.5
		wl := rv.l.process(in, decay)
		wr := rv.r.process(in, decay)
		left[i] = left[i]*(1-mix) + wl*mix
		right[i] = right[i]*(1-mix) + wr*mix
	}
}

func (rv *Reverb) Reset() {
	rv.l.reset()
	rv.r.reset()
}
