package dsp

const TypeGain = "gain"

const (
	GainLevel = iota
	GainMute
)

// Gain scales both channels by a linear factor.
type Gain struct {
	base
}

// NewGain creates a gain block at the given linear level.
func NewGain(level float64) *Gain {
	g := &Gain{}
	g.base.init(
		ParamDescriptor{Name: "gain", Kind: ParamFloat, Min: 0, Max: 4, Default: 1, Hint: "knob"},
		ParamDescriptor{Name: "mute", Kind: ParamBool, Min: 0, Max: 1, Default: 0, Hint: "toggle"},
	)
	g.SetParam(GainLevel, level)
	return g
}

func (g *Gain) TypeName() string { return TypeGain }

func (g *Gain) Process(left, right []float32) {
	level := float32(g.get(GainLevel))
	if g.get(GainMute) != 0 {
		level = 0
	}
	if level == 1 {
		return
	}
	for i := range left {
		left[i] *= level
	}
	for i := range right {
		right[i] *= level
	}
}
