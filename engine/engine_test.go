package engine

import (
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go-daw/dsp"
	"go-daw/synth"
)

// constSource writes a fixed value to every sample.
type constSource struct {
	l, r float32
}

func (s constSource) RenderAudio(left, right []float32) {
	for i := range left {
		left[i] = s.l
	}
	for i := range right {
		right[i] = s.r
	}
}

// sineSource is a phase-continuous test tone.
type sineSource struct {
	freq, sampleRate, phase float64
}

func (s *sineSource) RenderAudio(left, right []float32) {
	for i := range left {
		v := float32(0.5 * math.Sin(s.phase))
		left[i], right[i] = v, v
		s.phase += 2 * math.Pi * s.freq / s.sampleRate
	}
}

func TestRenderSilenceWithoutSynths(t *testing.T) {
	e := New(Options{SampleRate: 48000, MaxBlock: 64})
	e.AddDSPBlock(dsp.NewGain(1))

	out := make([]float32, 200)
	for i := range out {
		out[i] = 9
	}
	e.Render(out, 100, true)
	if len(out) != 200 {
		t.Fatalf("len = %d", len(out))
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want silence", i, v)
		}
	}
	if l, r := e.GetCurrentVolumeDB(); l != MinDB || r != MinDB {
		t.Fatalf("meters %v/%v on silence", l, r)
	}
}

func TestOneIdleSynthThroughUnityGain(t *testing.T) {
	e := New(Options{SampleRate: 48000, MaxBlock: 64})
	if err := e.AddSynth("osc", synth.NewOscillator(48000, synth.OscillatorOptions{})); err != nil {
		t.Fatal(err)
	}
	e.AddDSPBlock(dsp.NewGain(1.0))

	out := make([]float32, 100*2)
	for i := range out {
		out[i] = 9
	}
	e.Render(out, 100, true)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want silence with no notes playing", i, v)
		}
	}
}

func TestRenderMixesAndChunks(t *testing.T) {
	e := New(Options{SampleRate: 48000, MaxBlock: 16})
	if err := e.AddSynth("a", constSource{0.25, 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := e.AddSynth("b", constSource{0.25, -0.25}); err != nil {
		t.Fatal(err)
	}

	// 50 frames spans four 16-frame chunks
	out := make([]float32, 100)
	e.Render(out, 50, true)
	for i := 0; i < 50; i++ {
		if out[2*i] != 0.5 || out[2*i+1] != 0.25 {
			t.Fatalf("frame %d = %v/%v", i, out[2*i], out[2*i+1])
		}
	}
}

func TestAddRemoveSynth(t *testing.T) {
	e := New(Options{})
	e.AddSynth("lead", constSource{1, 1})
	if err := e.AddSynth("lead", constSource{}); !errors.Is(err, ErrDuplicateSynth) {
		t.Fatalf("duplicate add = %v", err)
	}
	if err := e.RemoveSynth("bass"); !errors.Is(err, ErrSynthNotFound) {
		t.Fatalf("remove missing = %v", err)
	}
	if !slices.Equal(e.Synths(), []string{"lead"}) {
		t.Fatalf("Synths() = %v", e.Synths())
	}
	if err := e.RemoveSynth("lead"); err != nil {
		t.Fatal(err)
	}
	out := make([]float32, 8)
	e.Render(out, 4, true)
	if slices.ContainsFunc(out, func(v float32) bool { return v != 0 }) {
		t.Fatal("removed synth still rendered")
	}
}

func TestVolume(t *testing.T) {
	e := New(Options{})
	e.AddSynth("a", constSource{0.5, 0.5})
	e.SetVolume(0.5)
	out := make([]float32, 2)
	e.Render(out, 1, true)
	if out[0] != 0.25 {
		t.Fatalf("out = %v", out[0])
	}
	e.SetVolume(-3)
	if e.Volume() != 0 {
		t.Fatalf("Volume() = %v after negative set", e.Volume())
	}
}

func TestBypassIsIdempotent(t *testing.T) {
	render := func(applyDSP, enabled bool) []float32 {
		e := New(Options{SampleRate: 48000, MaxBlock: 256})
		e.AddSynth("tone", &sineSource{freq: 440, sampleRate: 48000})
		e.AddDSPBlock(dsp.NewGain(0.5))
		e.AddSynthDSPBlock("tone", dsp.NewLowPass(48000))
		e.SetEnableDSP(enabled)
		out := make([]float32, 1024)
		e.Render(out, 512, applyDSP)
		return out
	}

	dry := render(false, true)

	// skipping DSP leaves the plain synth output times volume
	raw := &sineSource{freq: 440, sampleRate: 48000}
	l, r := make([]float32, 512), make([]float32, 512)
	raw.RenderAudio(l, r)
	for i := range l {
		if dry[2*i] != l[i] || dry[2*i+1] != r[i] {
			t.Fatalf("frame %d = %v/%v, want unprocessed %v/%v", i, dry[2*i], dry[2*i+1], l[i], r[i])
		}
	}
	e := New(Options{SampleRate: 48000, MaxBlock: 256})
	e.AddSynth("a", &sineSource{freq: 440, sampleRate: 48000})
	e.AddSynth("b", constSource{0.125, -0.125})
	e.AddDSPBlock(dsp.NewGain(0.5))
	e.AddDSPBlock(dsp.NewDelay(48000))
	e.AddSynthDSPBlock("b", dsp.NewLowPass(48000))
	e.SetVolume(0.5)
	mixed := make([]float32, 1024)
	e.Render(mixed, 512, false)
	for i := range l {
		wantL, wantR := (l[i]+0.125)*0.5, (r[i]-0.125)*0.5
		if mixed[2*i] != wantL || mixed[2*i+1] != wantR {
			t.Fatalf("frame %d = %v/%v, want (sum)*volume %v/%v", i, mixed[2*i], mixed[2*i+1], wantL, wantR)
		}
	}

	offAgain := render(true, false)
	if !slices.Equal(dry, offAgain) {
		t.Fatal("disabling DSP and skipping DSP differ")
	}
	wet := render(true, true)
	if slices.Equal(dry, wet) {
		t.Fatal("DSP had no effect")
	}

	// flipping the switch twice restores the identical dry output
	e = New(Options{SampleRate: 48000, MaxBlock: 256})
	e.AddSynth("tone", &sineSource{freq: 440, sampleRate: 48000})
	e.AddDSPBlock(dsp.NewGain(0.5))
	e.SetEnableDSP(false)
	e.SetEnableDSP(false)
	out := make([]float32, 1024)
	e.Render(out, 512, true)
	if !slices.Equal(out, dry) {
		t.Fatal("double disable changed output")
	}
}

func TestSynthChainOps(t *testing.T) {
	e := New(Options{})
	e.AddSynth("pad", constSource{0.5, 0.5})
	g1, g2 := dsp.NewGain(2), dsp.NewGain(0.5)
	if err := e.AddSynthDSPBlock("pad", g1); err != nil {
		t.Fatal(err)
	}
	if err := e.AddSynthDSPBlock("pad", g2); err != nil {
		t.Fatal(err)
	}
	if err := e.ReorderSynthDSPBlock("pad", 1, 0); err != nil {
		t.Fatal(err)
	}
	c, _ := e.SynthChain("pad")
	if got, _ := c.At(0); got != dsp.Block(g2) {
		t.Fatal("reorder did not move block")
	}
	if err := e.RemoveSynthDSPBlock("pad", g1); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveSynthDSPBlock("pad", g1); !errors.Is(err, dsp.ErrNotFound) {
		t.Fatalf("second remove = %v", err)
	}
	if err := e.AddSynthDSPBlock("nope", g1); !errors.Is(err, ErrSynthNotFound) {
		t.Fatalf("add to missing synth = %v", err)
	}

	out := make([]float32, 2)
	e.Render(out, 1, true)
	if out[0] != 0.25 {
		t.Fatalf("out = %v, want 0.25", out[0])
	}
}

func TestMasterChainOps(t *testing.T) {
	e := New(Options{})
	a, b := dsp.NewGain(1), dsp.NewEQ(48000)
	e.AddDSPBlock(a)
	if err := e.InsertDSPBlock(0, b); err != nil {
		t.Fatal(err)
	}
	if err := e.ReorderDSPBlock(0, 1); err != nil {
		t.Fatal(err)
	}
	if got := e.MasterChain().Blocks(); got[0] != dsp.Block(a) || got[1] != dsp.Block(b) {
		t.Fatal("unexpected order")
	}
	if err := e.ReorderDSPBlock(0, 4); !errors.Is(err, dsp.ErrIndex) {
		t.Fatalf("bad reorder = %v", err)
	}
	if err := e.RemoveDSPBlock(b); err != nil {
		t.Fatal(err)
	}
	if e.MasterChain().Len() != 1 {
		t.Fatal("remove failed")
	}
}

func TestMeters(t *testing.T) {
	e := New(Options{SampleRate: 48000, MaxBlock: 128})
	e.AddSynth("a", constSource{0.5, 0.1})
	out := make([]float32, 256)
	e.Render(out, 128, true)

	lv := e.Levels()
	if lv.PeakL != 0.5 || lv.RMSL != 0.5 {
		t.Fatalf("left levels %+v", lv)
	}
	l, r := e.GetCurrentVolumeDB()
	if math.Abs(float64(l)-(-6.02)) > 0.01 || math.Abs(float64(r)-(-20)) > 0.01 {
		t.Fatalf("dB = %v/%v", l, r)
	}

	// held peak decays once the signal stops
	e.RemoveSynth("a")
	e.Render(out, 128, true)
	if got := e.Levels(); got.PeakL >= 0.5 || got.PeakL <= 0 || got.RMSL != 0 {
		t.Fatalf("after silence %+v", got)
	}
}

func TestToDB(t *testing.T) {
	tests := []struct {
		in   float32
		want float32
	}{
		{1, 0},
		{0, MinDB},
		{-1, MinDB},
		{1e-9, MinDB},
	}
	for _, tt := range tests {
		if got := ToDB(tt.in); got != tt.want {
			t.Errorf("ToDB(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSaveLoadChains(t *testing.T) {
	e := New(Options{SampleRate: 44100})
	e.AddSynth("bass", constSource{})
	eq := dsp.NewEQ(44100)
	eq.SetParam(dsp.EQGainDB, 6)
	e.AddDSPBlock(eq)
	e.AddSynthDSPBlock("bass", dsp.NewCompressor(44100))

	path := filepath.Join(t.TempDir(), "chains.json")
	if err := e.SaveChains(path); err != nil {
		t.Fatal(err)
	}

	f := New(Options{SampleRate: 44100})
	f.AddSynth("bass", constSource{})
	if err := f.LoadChains(path); err != nil {
		t.Fatal(err)
	}
	master := f.MasterChain().Blocks()
	if len(master) != 1 || master[0].TypeName() != dsp.TypeEQ {
		t.Fatalf("master = %v", master)
	}
	if v, _ := master[0].Param(dsp.EQGainDB); v != 6 {
		t.Fatalf("gain_db = %v", v)
	}
	c, _ := f.SynthChain("bass")
	if c.Len() != 1 || c.Blocks()[0].TypeName() != dsp.TypeCompressor {
		t.Fatal("synth chain not restored")
	}
}

func TestApplyPresetAllOrNothing(t *testing.T) {
	e := New(Options{})
	e.AddDSPBlock(dsp.NewGain(1))
	err := e.ApplyPreset(ChainPreset{Master: []dsp.BlockState{{Type: "wah"}}})
	if !errors.Is(err, dsp.ErrUnknownType) {
		t.Fatalf("err = %v", err)
	}
	if e.MasterChain().Len() != 1 {
		t.Fatal("failed preset changed the master chain")
	}
}

func TestStreamer(t *testing.T) {
	e := New(Options{SampleRate: 8000, MaxBlock: 32})
	e.AddSynth("a", constSource{0.5, -0.5})
	s := e.Streamer(true)
	blocks := 0
	s.OnBlock = func(frames int) bool {
		if frames > 32 {
			t.Errorf("block of %d frames", frames)
		}
		blocks++
		return blocks <= 3
	}

	buf := make([][2]float64, 100)
	n, ok := s.Stream(buf)
	if !ok || n != 96 {
		t.Fatalf("Stream = %d, %v; want 96 frames", n, ok)
	}
	if buf[0][0] != 0.5 || buf[95][1] != -0.5 {
		t.Fatalf("samples %v %v", buf[0], buf[95])
	}
	if n, ok := s.Stream(buf); n != 0 || ok {
		t.Fatalf("ended stream returned %d, %v", n, ok)
	}
	if f := s.Format(2); f.NumChannels != 2 || int(f.SampleRate) != 8000 {
		t.Fatalf("format %+v", f)
	}
}

func TestAnalyzerFindsTone(t *testing.T) {
	a, err := NewAnalyzer(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	const sr = 8000
	e := New(Options{SampleRate: sr, MaxBlock: 256})
	e.SetAnalyzer(a)
	e.AddSynth("tone", &sineSource{freq: 1000, sampleRate: sr})
	out := make([]float32, 2*AnalyzerSize)
	e.Render(out, AnalyzerSize, true)

	deadline := time.Now().Add(2 * time.Second)
	var spec []float64
	for spec == nil {
		if time.Now().After(deadline) {
			t.Fatal("no spectrum")
		}
		time.Sleep(time.Millisecond)
		spec = e.Spectrum()
	}
	peak := 0
	for i, v := range spec {
		if v > spec[peak] {
			peak = i
		}
	}
	if hz := BinHz(peak, sr); math.Abs(hz-1000) > 2*sr/AnalyzerSize {
		t.Fatalf("peak at %.1f Hz, want 1000", hz)
	}
}
