// Package daw wires the engine, router, scheduler and audio output into one
// playable session.
package daw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go-daw/audio"
	"go-daw/config"
	"go-daw/debug"
	"go-daw/engine"
	"go-daw/midi"
	"go-daw/sequencer"
	"go-daw/synth"
)

var ErrClosed = errors.New("daw: session closed")

// midiPrefix in Track.Synth names an external output port, e.g. "midi:IAC".
const midiPrefix = "midi:"

// Session owns one loaded sequence and everything that plays it.
//
// Fields are declared in teardown order: Close stops audio first, so the
// device callback never renders an engine whose synths are going away.
type Session struct {
	audio  *audio.Worker // nil without a backend
	sched  *sequencer.Scheduler
	router *synth.Router
	engine *engine.Engine

	cfg      *config.Config
	backend  audio.Backend
	analyzer *engine.Analyzer
	audioErr error

	mu        sync.Mutex
	seq       *sequencer.Sequence
	synthIDs  []string
	synths    []synth.Synth
	outputs   []*midi.OutputSynth
	keyboards []*midi.Keyboard
	kbdCtx    context.Context
	cancelKbd context.CancelFunc
	closed    bool
}

// NewSession builds a session from cfg. backend may be nil for offline use.
// Failing to open an audio device is not an error: the session runs silent
// and AudioErr reports why.
func NewSession(cfg *config.Config, backend audio.Backend) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Validate()

	router, err := synth.NewRouter(cfg.Queue.Capacity)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	eng := engine.New(engine.Options{
		SampleRate: float64(cfg.Audio.SampleRate),
		MaxBlock:   cfg.Audio.BlockSize,
	})
	eng.SetVolume(float32(cfg.Engine.Volume))
	eng.SetEnableDSP(cfg.Engine.DSPEnabled)

	s := &Session{
		sched:   sequencer.NewScheduler(router, sequencer.Options{Interval: cfg.Playback.Interval()}),
		router:  router,
		engine:  eng,
		cfg:     cfg,
		backend: backend,
	}
	s.sched.SetLooping(cfg.Playback.Loop)

	if cfg.Engine.Analyzer {
		a, err := engine.NewAnalyzer(time.Duration(cfg.UI.RefreshMs) * time.Millisecond)
		if err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
		s.analyzer = a
		eng.SetAnalyzer(a)
	}
	s.applyChainPreset()

	if backend != nil {
		s.audio = audio.NewWorker(backend)
		s.audio.SetPreferredDevice(cfg.Audio.Device)
		s.audio.SetMaxChannels(cfg.Audio.Channels)
		s.audio.SetApplyDSP(true)
		s.audio.SetRenderer(eng)
		if err := s.audio.Start(cfg.Audio.SampleRate, cfg.Audio.BlockSize); err != nil {
			// keep going without sound
			s.audioErr = err
			debug.Log("daw", "audio unavailable, continuing silent: %v", err)
		}
	}
	return s, nil
}

func (s *Session) applyChainPreset() {
	if s.cfg.Engine.ChainPreset == "" {
		return
	}
	if err := s.engine.LoadChains(s.cfg.Engine.ChainPreset); err != nil {
		debug.Log("daw", "chain preset %s: %v", s.cfg.Engine.ChainPreset, err)
	}
}

func (s *Session) Engine() *engine.Engine          { return s.engine }
func (s *Session) Scheduler() *sequencer.Scheduler { return s.sched }
func (s *Session) Router() *synth.Router           { return s.router }
func (s *Session) Audio() *audio.Worker            { return s.audio }
func (s *Session) Config() *config.Config          { return s.cfg }

// AudioErr is why no device opened, or nil.
func (s *Session) AudioErr() error { return s.audioErr }

// Sequence returns the loaded sequence.
func (s *Session) Sequence() *sequencer.Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// LoadFile reads a Standard MIDI File and loads it.
func (s *Session) LoadFile(path string) error {
	seq, err := sequencer.LoadSMF(path)
	if err != nil {
		return err
	}
	return s.Load(seq)
}

// Load stops playback and replaces the sequence. Every track gets its own
// synth, effect chain and lane queue.
func (s *Session) Load(seq *sequencer.Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sched.Stop()
	s.unloadLocked()

	if err := s.sched.SetSequence(seq); err != nil {
		return err
	}
	for i, t := range s.sched.Lanes() {
		id := fmt.Sprintf("%02d %s", i+1, t.Name)
		sy := s.newSynth(t)
		if err := s.engine.AddSynth(id, sy); err != nil {
			return err
		}
		s.synthIDs = append(s.synthIDs, id)
		s.synths = append(s.synths, sy)
		if err := s.router.Route(i, sy, lanePan(i, len(seq.Tracks))); err != nil {
			return err
		}
	}
	s.seq = seq
	s.applyChainPreset()
	debug.Log("daw", "loaded %q: %d tracks, %d ticks", seq.Name, len(seq.Tracks), seq.MaxTick())
	return nil
}

// lanePan spreads tracks gently across the stereo field.
func lanePan(i, n int) float32 {
	if n <= 1 {
		return 0
	}
	return 0.6 * (2*float32(i)/float32(n-1) - 1)
}

// newSynth picks a track's synth: a named MIDI port, the configured default
// port, or an oscillator whose waveform is the synth name.
func (s *Session) newSynth(t *sequencer.Track) synth.Synth {
	port := ""
	switch {
	case strings.HasPrefix(t.Synth, midiPrefix):
		port = strings.TrimPrefix(t.Synth, midiPrefix)
	case t.Synth == "" && s.cfg.MIDI.OutputPort != "":
		port = s.cfg.MIDI.OutputPort
	}
	if port != "" {
		out, err := midi.OpenOutput(port)
		if err == nil {
			s.outputs = append(s.outputs, out)
			return out
		}
		debug.Log("daw", "track %q: %v, using oscillator", t.Name, err)
	}

	wave := synth.Sine
	if t.Synth != "" && !strings.HasPrefix(t.Synth, midiPrefix) {
		w, err := synth.ParseWaveform(t.Synth)
		if err != nil {
			debug.Log("daw", "track %q: %v", t.Name, err)
		} else {
			wave = w
		}
	}
	return synth.NewOscillator(s.engine.SampleRate(), synth.OscillatorOptions{Waveform: wave})
}

// unloadLocked drops the current synths. mu must be held and playback
// stopped.
func (s *Session) unloadLocked() {
	for i := range s.synthIDs {
		s.router.Unroute(i)
	}
	for _, id := range s.synthIDs {
		if err := s.engine.RemoveSynth(id); err != nil {
			debug.Log("daw", "remove synth %q: %v", id, err)
		}
	}
	s.synthIDs, s.synths = nil, nil
	for _, o := range s.outputs {
		o.Close()
	}
	s.outputs = nil
}

func (s *Session) Play() error { return s.sched.Play() }

// Stop reports false when nothing was playing.
func (s *Session) Stop() bool { return s.sched.Stop() }

// Toggle starts or stops playback.
func (s *Session) Toggle() error {
	if s.sched.Stop() {
		return nil
	}
	return s.sched.Play()
}

func (s *Session) SetLooping(on bool) {
	s.sched.SetLooping(on)
	s.cfg.Playback.Loop = on
}

func (s *Session) Mute() {
	if s.audio != nil {
		s.audio.Mute()
	}
}

func (s *Session) Unmute() {
	if s.audio != nil {
		s.audio.Unmute()
	}
}

func (s *Session) Muted() bool {
	return s.audio != nil && s.audio.Muted()
}

// SynthIDs returns the engine ids of the loaded tracks, in lane order.
func (s *Session) SynthIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.synthIDs...)
}

// Spectrum returns the analyzer magnitudes, or nil when it is disabled.
func (s *Session) Spectrum() []float64 {
	return s.engine.Spectrum()
}

// channelSynth replays keyboard notes on a fixed channel.
type channelSynth struct {
	synth.Synth
	ch uint8
}

func (c channelSynth) PlayNote(note, velocity, _ uint8, pan float32) {
	c.Synth.PlayNote(note, velocity, c.ch, pan)
}

// AttachKeyboard plays the named input port on the first track's synth.
func (s *Session) AttachKeyboard(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.synthIDs) == 0 {
		return sequencer.ErrNoSequence
	}
	kb, err := midi.OpenKeyboard(name)
	if err != nil {
		return err
	}
	src := s.synths[0]
	if s.cancelKbd == nil {
		s.kbdCtx, s.cancelKbd = context.WithCancel(context.Background())
	}
	s.keyboards = append(s.keyboards, kb)
	go kb.Forward(s.kbdCtx, channelSynth{Synth: src, ch: uint8(s.cfg.MIDI.Channel)}, 0)
	debug.Log("daw", "keyboard %q -> %s", kb.ID(), s.synthIDs[0])
	return nil
}

// RenderOffline renders the whole sequence plus tail into w as 16-bit WAV.
// It runs the live code path synchronously: the lane workers in manual mode,
// a scheduler stepped on a manual clock, and the engine rendering block by
// block. The audio device is paused meanwhile, and chains, voices and
// meters are reset before and after.
func (s *Session) RenderOffline(w io.WriteSeeker, tail time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.seq == nil {
		return sequencer.ErrNoSequence
	}
	if s.sched.Playing() {
		return sequencer.ErrAlreadyPlaying
	}

	if s.audio != nil && s.audio.Running() {
		s.audio.Stop()
		defer func() {
			if err := s.audio.Start(s.cfg.Audio.SampleRate, s.cfg.Audio.BlockSize); err != nil {
				debug.Log("daw", "audio restart after render: %v", err)
			}
		}()
	}

	s.router.EnterManualMode()
	defer s.router.ExitManualMode()
	// live leftovers reach the synths and are then wiped with the effect
	// tails, so every export starts from silence
	s.router.ProcessQueues()
	s.engine.Reset()

	clk := sequencer.NewManualClock(time.Unix(0, 0))
	off := sequencer.NewScheduler(s.router, sequencer.Options{Clock: clk})
	if err := off.SetSequence(s.seq); err != nil {
		return err
	}
	if err := off.BeginOffline(); err != nil {
		return err
	}
	defer off.EndOffline()

	sr := s.engine.SampleRate()
	tailFrames := int(tail.Seconds() * sr)
	playing := true
	st := s.engine.Streamer(true)
	st.OnBlock = func(frames int) bool {
		if playing {
			_, playing = off.Advance()
			s.router.ProcessQueues()
		} else {
			if tailFrames <= 0 {
				return false
			}
			tailFrames -= frames
		}
		clk.Advance(time.Duration(float64(frames) / sr * float64(time.Second)))
		return true
	}

	err := encodeWAV(w, st)
	s.engine.Reset()
	debug.Log("daw", "offline render done: %v", err)
	return err
}

// RenderOfflineFile renders to a WAV file at path.
func (s *Session) RenderOfflineFile(path string, tail time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.RenderOffline(f, tail); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close tears the session down: audio, then playback, then the lane
// workers, then the synths.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if s.audio != nil {
		errs = append(errs, s.audio.Stop())
	}
	if c, ok := s.backend.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	s.sched.Stop()

	s.mu.Lock()
	if s.cancelKbd != nil {
		s.cancelKbd()
	}
	for _, kb := range s.keyboards {
		errs = append(errs, kb.Close())
	}
	s.keyboards = nil
	s.mu.Unlock()

	s.router.Close()

	s.mu.Lock()
	for _, id := range s.synthIDs {
		s.engine.RemoveSynth(id)
	}
	s.synthIDs, s.synths = nil, nil
	for _, o := range s.outputs {
		errs = append(errs, o.Close())
	}
	s.outputs = nil
	s.mu.Unlock()

	if s.analyzer != nil {
		s.analyzer.Close()
	}
	debug.Log("daw", "session closed")
	return errors.Join(errs...)
}
