package dsp

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func TestRegistryBuiltins(t *testing.T) {
	want := []string{TypeCompressor, TypeDelay, TypeEQ, TypeGain, TypeLowPass, TypeReverb}
	for _, name := range want {
		if !slices.Contains(Types(), name) {
			t.Errorf("Types() missing %q", name)
		}
		b, err := New(name, 48000)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if b.TypeName() != name {
			t.Errorf("New(%q).TypeName() = %q", name, b.TypeName())
		}
		if !b.Active() {
			t.Errorf("%s: new block inactive", name)
		}
	}
	if _, err := New("flanger", 48000); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("New(flanger) = %v, want ErrUnknownType", err)
	}
}

func TestSetParamClamps(t *testing.T) {
	eq := NewEQ(48000)
	tests := []struct {
		idx  int
		in   float64
		want float64
	}{
		{EQFreq, 5, 20},
		{EQFreq, 99999, 20000},
		{EQGainDB, -100, -24},
		{EQQ, 3, 3},
		{EQQ, math.NaN(), 0.707},
	}
	for _, tt := range tests {
		if !eq.SetParam(tt.idx, tt.in) {
			t.Fatalf("SetParam(%d) rejected", tt.idx)
		}
		if got, _ := eq.Param(tt.idx); got != tt.want {
			t.Errorf("SetParam(%d, %v) stored %v, want %v", tt.idx, tt.in, got, tt.want)
		}
	}
}

func TestSetParamOutOfRangeIndex(t *testing.T) {
	g := NewGain(0.5)
	if g.SetParam(7, 1) || g.SetParam(-1, 1) {
		t.Fatal("SetParam accepted an out-of-range index")
	}
	if v, _ := g.Param(GainLevel); v != 0.5 {
		t.Fatalf("gain changed to %v", v)
	}
	if _, ok := g.Param(7); ok {
		t.Fatal("Param(7) reported ok")
	}
}

func TestBoolParamSnaps(t *testing.T) {
	g := NewGain(1)
	g.SetParam(GainMute, 0.7)
	if v, _ := g.Param(GainMute); v != 1 {
		t.Fatalf("mute = %v, want 1", v)
	}
	l, r := []float32{0.5}, []float32{0.5}
	g.Process(l, r)
	if l[0] != 0 || r[0] != 0 {
		t.Fatalf("muted gain passed %v/%v", l[0], r[0])
	}
}

func TestGainScales(t *testing.T) {
	g := NewGain(2)
	l, r := []float32{0.25, -0.5}, []float32{0.1, 0}
	g.Process(l, r)
	if !slices.Equal(l, []float32{0.5, -1}) || !slices.Equal(r, []float32{0.2, 0}) {
		t.Fatalf("got %v %v", l, r)
	}
}

func sine(n int, freq, sampleRate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

func rms(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestEQFlatIsTransparent(t *testing.T) {
	eq := NewEQ(48000)
	in := sine(512, 440, 48000)
	l, r := slices.Clone(in), slices.Clone(in)
	eq.Process(l, r)
	for i := range in {
		if math.Abs(float64(l[i]-in[i])) > 1e-5 {
			t.Fatalf("sample %d: %v != %v", i, l[i], in[i])
		}
	}
}

func TestEQBoostRaisesLevel(t *testing.T) {
	eq := NewEQ(48000)
	eq.SetParam(EQFreq, 1000)
	eq.SetParam(EQGainDB, 12)
	in := sine(4800, 1000, 48000)
	l, r := slices.Clone(in), slices.Clone(in)
	eq.Process(l, r)
	// skip the transient
	ratio := rms(l[2400:]) / rms(in[2400:])
	if ratio < 3.5 || ratio > 4.5 {
		t.Fatalf("12 dB boost gave level ratio %.2f", ratio)
	}
}

func TestLowPassAttenuatesHighs(t *testing.T) {
	lp := NewLowPass(48000)
	lp.SetParam(LowPassCutoff, 500)
	in := sine(4800, 8000, 48000)
	l, r := slices.Clone(in), slices.Clone(in)
	lp.Process(l, r)
	if ratio := rms(l[2400:]) / rms(in[2400:]); ratio > 0.05 {
		t.Fatalf("8 kHz through a 500 Hz low-pass kept %.3f of its level", ratio)
	}
}

func TestCompressorReducesLoudSignal(t *testing.T) {
	c := NewCompressor(48000)
	c.SetParam(CompThresholdDB, -20)
	c.SetParam(CompRatio, 10)
	c.SetParam(CompAttackMs, 0.1)
	in := sine(9600, 200, 48000)
	l, r := slices.Clone(in), slices.Clone(in)
	c.Process(l, r)
	if rms(l[4800:]) >= rms(in[4800:])*0.5 {
		t.Fatalf("compressor left level at %.3f of input", rms(l[4800:])/rms(in[4800:]))
	}
}

func TestCompressorQuietSignalUntouched(t *testing.T) {
	c := NewCompressor(48000)
	l, r := []float32{0.001, -0.001}, []float32{0.001, 0}
	c.Process(l, r)
	if l[0] != 0.001 || r[1] != 0 {
		t.Fatalf("got %v %v", l, r)
	}
}

func TestDelayEcho(t *testing.T) {
	d := NewDelay(1000)
	d.SetParam(DelayTimeMs, 10) // 10 samples at 1 kHz
	d.SetParam(DelayFeedback, 0)
	d.SetParam(DelayMix, 1)

	l, r := make([]float32, 32), make([]float32, 32)
	l[0], r[0] = 1, 1
	d.Process(l, r)
	for i, v := range l {
		want := float32(0)
		if i == 10 {
			want = 1
		}
		if v != want {
			t.Fatalf("sample %d = %v, want %v", i, v, want)
		}
	}

	d.Reset()
	l2, r2 := make([]float32, 32), make([]float32, 32)
	d.Process(l2, r2)
	if slices.ContainsFunc(l2, func(v float32) bool { return v != 0 }) {
		t.Fatal("Reset left echoes in the line")
	}
}

func TestReverbTail(t *testing.T) {
	rv := NewReverb(44100)
	rv.SetParam(ReverbMix, 1)
	l, r := make([]float32, 8192), make([]float32, 8192)
	l[0], r[0] = 1, 1
	rv.Process(l, r)
	if rms(l[1000:]) == 0 {
		t.Fatal("no reverb tail")
	}
	if slices.Equal(l, r) {
		t.Fatal("left and right tails identical, want stereo spread")
	}
}

func TestInactiveBlockIsBypassed(t *testing.T) {
	for _, name := range Types() {
		b, _ := New(name, 48000)
		b.SetActive(false)
		in := sine(256, 440, 48000)
		l, r := slices.Clone(in), slices.Clone(in)
		NewChain(b).Process(l, r)
		if !slices.Equal(l, in) || !slices.Equal(r, in) {
			t.Errorf("%s: inactive block changed the signal", name)
		}
	}
}
