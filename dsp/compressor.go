package dsp

import "math"

const TypeCompressor = "compressor"

const (
	CompThresholdDB = iota
	CompRatio
	CompAttackMs
	CompReleaseMs
	CompMakeupDB
)

// Compressor is a feed-forward peak compressor. One envelope follows the
// louder channel so the stereo image does not shift under gain reduction.
type Compressor struct {
	base
	sampleRate float64
	seen       uint64

	threshold float64 // linear
	ratio     float64
	attack    float64 // per-sample smoothing coefficients
	release   float64
	makeup    float64
	envelope  float64
}

// NewCompressor creates a compressor with a -18 dB threshold at 4:1.
func NewCompressor(sampleRate float64) *Compressor {
	c := &Compressor{sampleRate: sampleRate}
	c.base.init(
		ParamDescriptor{Name: "threshold_db", Kind: ParamFloat, Min: -60, Max: 0, Default: -18, Hint: "db"},
		ParamDescriptor{Name: "ratio", Kind: ParamFloat, Min: 1, Max: 20, Default: 4, Hint: "knob"},
		ParamDescriptor{Name: "attack_ms", Kind: ParamFloat, Min: 0.1, Max: 200, Default: 10, Hint: "ms"},
		ParamDescriptor{Name: "release_ms", Kind: ParamFloat, Min: 1, Max: 2000, Default: 100, Hint: "ms"},
		ParamDescriptor{Name: "makeup_db", Kind: ParamFloat, Min: 0, Max: 24, Default: 0, Hint: "db"},
	)
	c.update()
	c.seen = c.version.Load()
	return c
}

func (c *Compressor) TypeName() string { return TypeCompressor }

func timeCoef(ms, sampleRate float64) float64 {
	return 1 - math.Exp(-1/(sampleRate*ms/1000))
}

func (c *Compressor) update() {
	c.threshold = dbToGain(c.get(CompThresholdDB))
	c.ratio = c.get(CompRatio)
	c.attack = timeCoef(c.get(CompAttackMs), c.sampleRate)
	c.release = timeCoef(c.get(CompReleaseMs), c.sampleRate)
	c.makeup = dbToGain(c.get(CompMakeupDB))
}

func (c *Compressor) Process(left, right []float32) {
	if c.changed(&c.seen) {
		c.update()
	}
	n := min(len(left), len(right))
	for i := 0; i < n; i++ {
		level := math.Max(math.Abs(float64(left[i])), math.Abs(float64(right[i])))
		if level > c.envelope {
			c.envelope += (level - c.envelope) * c.attack
		} else {
			c.envelope += (level - c.envelope) * c.release
		}

		gain := c.makeup
		if c.envelope > c.threshold {
			// above threshold the output rises 1/ratio dB per input dB
			gain *= math.Pow(c.envelope/c.threshold, 1/c.ratio-1)
		}
		left[i] = float32(float64(left[i]) * gain)
		right[i] = float32(float64(right[i]) * gain)
	}
}

func (c *Compressor) Reset() {
	c.envelope = 0
}
