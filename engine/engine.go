// Package engine mixes registered synth sources through their effect chains
// and the master chain into an interleaved stereo buffer.
package engine

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"go-daw/debug"
	"go-daw/dsp"
)

var (
	ErrDuplicateSynth = errors.New("engine: synth already registered")
	ErrSynthNotFound  = errors.New("engine: synth not registered")
)

// Source produces one block of audio into left and right. It is called on
// the audio goroutine and must not block.
type Source interface {
	RenderAudio(left, right []float32)
}

// Options configures an Engine.
type Options struct {
	SampleRate float64
	MaxBlock   int // largest block rendered in one pass; bigger requests are split
}

const (
	DefaultSampleRate = 48000
	DefaultMaxBlock   = 1024
)

type voice struct {
	id    string
	src   Source
	chain *dsp.Chain
	left  []float32
	right []float32
}

// voiceList is one immutable version of the synth set, pinned by Render the
// same way dsp.Chain pins its blocks.
type voiceList struct {
	voices  []*voice
	readers atomic.Int32
}

// Engine is the render graph: synth sources, their chains, a master chain,
// volume and meters.
//
// Render runs on the audio goroutine and takes no lock. Everything else is
// called from control goroutines.
type Engine struct {
	sampleRate float64
	maxBlock   int

	mu     sync.Mutex // serialises synth list mutation
	voices atomic.Pointer[voiceList]
	master *dsp.Chain

	enabled atomic.Bool
	volume  atomic.Uint32 // float32 bits

	mixL, mixR []float32
	meter      meter
	analyzer   atomic.Pointer[Analyzer]
}

// New creates an engine with DSP enabled and unity volume.
func New(opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.MaxBlock <= 0 {
		opts.MaxBlock = DefaultMaxBlock
	}
	e := &Engine{
		sampleRate: opts.SampleRate,
		maxBlock:   opts.MaxBlock,
		master:     dsp.NewChain(),
		mixL:       make([]float32, opts.MaxBlock),
		mixR:       make([]float32, opts.MaxBlock),
	}
	e.voices.Store(&voiceList{})
	e.enabled.Store(true)
	e.SetVolume(1)
	e.meter.init(opts.SampleRate)
	return e
}

func (e *Engine) SampleRate() float64 { return e.sampleRate }
func (e *Engine) MaxBlock() int       { return e.maxBlock }

// SetEnableDSP turns every chain on or off without touching block state.
func (e *Engine) SetEnableDSP(on bool) {
	e.enabled.Store(on)
	debug.Log("engine", "dsp enabled=%v", on)
}

func (e *Engine) DSPEnabled() bool { return e.enabled.Load() }

// SetVolume sets the linear master volume. Negative values become 0.
func (e *Engine) SetVolume(v float32) {
	if v < 0 || math.IsNaN(float64(v)) {
		v = 0
	}
	e.volume.Store(math.Float32bits(v))
}

func (e *Engine) Volume() float32 {
	return math.Float32frombits(e.volume.Load())
}

func (e *Engine) acquire() *voiceList {
	for {
		l := e.voices.Load()
		l.readers.Add(1)
		if e.voices.Load() == l {
			return l
		}
		l.readers.Add(-1)
	}
}

// Render writes frames of interleaved stereo into out, which must hold at
// least 2*frames samples. DSP runs only when applyDSP is true and DSP is
// enabled.
func (e *Engine) Render(out []float32, frames int, applyDSP bool) {
	frames = min(frames, len(out)/2)
	dspOn := applyDSP && e.enabled.Load()
	vol := e.Volume()

	l := e.acquire()
	defer l.readers.Add(-1)

	for done := 0; done < frames; {
		n := min(e.maxBlock, frames-done)
		e.renderBlock(l.voices, out[done*2:(done+n)*2], n, dspOn, vol)
		done += n
	}
}

func (e *Engine) renderBlock(voices []*voice, out []float32, n int, dspOn bool, vol float32) {
	mixL, mixR := e.mixL[:n], e.mixR[:n]
	clear(mixL)
	clear(mixR)

	for _, v := range voices {
		left, right := v.left[:n], v.right[:n]
		clear(left)
		clear(right)
		v.src.RenderAudio(left, right)
		if dspOn {
			v.chain.Process(left, right)
		}
		for i := range n {
			mixL[i] += left[i]
			mixR[i] += right[i]
		}
	}

	if dspOn {
		e.master.Process(mixL, mixR)
	}

	for i := range n {
		l, r := mixL[i]*vol, mixR[i]*vol
		mixL[i], mixR[i] = l, r
		out[2*i] = l
		out[2*i+1] = r
	}

	e.meter.update(mixL, mixR)
	if a := e.analyzer.Load(); a != nil {
		a.feed(mixL, mixR)
	}
}

// AddSynth registers src under id with an empty effect chain.
func (e *Engine) AddSynth(id string, src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.voices.Load().voices
	if slices.ContainsFunc(old, func(v *voice) bool { return v.id == id }) {
		return fmt.Errorf("%w: %q", ErrDuplicateSynth, id)
	}
	v := &voice{
		id:    id,
		src:   src,
		chain: dsp.NewChain(),
		left:  make([]float32, e.maxBlock),
		right: make([]float32, e.maxBlock),
	}
	next := make([]*voice, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, v)
	e.voices.Store(&voiceList{voices: next})
	debug.Log("engine", "synth %q added (%d total)", id, len(next))
	return nil
}

// RemoveSynth unregisters id. When it returns the audio goroutine no longer
// calls the source.
func (e *Engine) RemoveSynth(id string) error {
	e.mu.Lock()
	old := e.voices.Load()
	i := slices.IndexFunc(old.voices, func(v *voice) bool { return v.id == id })
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSynthNotFound, id)
	}
	e.voices.Store(&voiceList{voices: slices.Delete(slices.Clone(old.voices), i, i+1)})
	e.mu.Unlock()

	for old.readers.Load() != 0 {
		runtime.Gosched()
	}
	debug.Log("engine", "synth %q removed", id)
	return nil
}

// Synths returns the registered ids in render order.
func (e *Engine) Synths() []string {
	voices := e.voices.Load().voices
	ids := make([]string, len(voices))
	for i, v := range voices {
		ids[i] = v.id
	}
	return ids
}

func (e *Engine) find(id string) (*voice, bool) {
	for _, v := range e.voices.Load().voices {
		if v.id == id {
			return v, true
		}
	}
	return nil, false
}

// SynthChain returns the effect chain of synth id.
func (e *Engine) SynthChain(id string) (*dsp.Chain, bool) {
	v, ok := e.find(id)
	if !ok {
		return nil, false
	}
	return v.chain, true
}

// Reset clears the state of every chain and of sources that can be reset,
// then zeroes the meters. Call it only while nothing renders.
func (e *Engine) Reset() {
	for _, v := range e.voices.Load().voices {
		v.chain.Reset()
		if r, ok := v.src.(dsp.Resetter); ok {
			r.Reset()
		}
	}
	e.master.Reset()
	e.ResetMeters()
}

// MasterChain returns the chain applied to the mix.
func (e *Engine) MasterChain() *dsp.Chain { return e.master }

func (e *Engine) AddDSPBlock(b dsp.Block) {
	e.master.Add(b)
	debug.Log("engine", "master += %s", b.TypeName())
}

func (e *Engine) InsertDSPBlock(i int, b dsp.Block) error {
	return e.master.Insert(i, b)
}

func (e *Engine) RemoveDSPBlock(b dsp.Block) error {
	return e.master.Remove(b)
}

func (e *Engine) ReorderDSPBlock(from, to int) error {
	return e.master.Reorder(from, to)
}

func (e *Engine) synthChain(id string) (*dsp.Chain, error) {
	c, ok := e.SynthChain(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSynthNotFound, id)
	}
	return c, nil
}

func (e *Engine) AddSynthDSPBlock(id string, b dsp.Block) error {
	c, err := e.synthChain(id)
	if err != nil {
		return err
	}
	c.Add(b)
	debug.Log("engine", "%s += %s", id, b.TypeName())
	return nil
}

func (e *Engine) RemoveSynthDSPBlock(id string, b dsp.Block) error {
	c, err := e.synthChain(id)
	if err != nil {
		return err
	}
	return c.Remove(b)
}

func (e *Engine) ReorderSynthDSPBlock(id string, from, to int) error {
	c, err := e.synthChain(id)
	if err != nil {
		return err
	}
	return c.Reorder(from, to)
}

// NewBlock creates a registered block type at the engine's sample rate.
func (e *Engine) NewBlock(typeName string) (dsp.Block, error) {
	return dsp.New(typeName, e.sampleRate)
}

// SetAnalyzer attaches a (or detaches with nil) spectrum analyzer fed by
// Render.
func (e *Engine) SetAnalyzer(a *Analyzer) {
	e.analyzer.Store(a)
}
