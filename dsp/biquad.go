package dsp

import "math"

// biquad is a direct form I second-order section with coefficients
// normalised by a0.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) set(b0, b1, b2, a0, a1, a2 float64) {
	f.b0 = b0 / a0
	f.b1 = b1 / a0
	f.b2 = b2 / a0
	f.a1 = a1 / a0
	f.a2 = a2 / a0
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// peaking sets RBJ cookbook peaking EQ coefficients.
func (f *biquad) peaking(sampleRate, freq, gainDB, q float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	f.set(1+alpha*a, -2*cosw, 1-alpha*a, 1+alpha/a, -2*cosw, 1-alpha/a)
}

// lowPass sets RBJ low-pass coefficients; q = 1/sqrt2 gives Butterworth.
func (f *biquad) lowPass(sampleRate, cutoff, q float64) {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	f.set((1-cosw)/2, 1-cosw, (1-cosw)/2, 1+alpha, -2*cosw, 1-alpha)
}

// nyquistClamp keeps a corner frequency below Nyquist.
func nyquistClamp(freq, sampleRate float64) float64 {
	return math.Min(freq, sampleRate*0.49)
}

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}
