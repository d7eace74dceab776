package synth

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go-daw/debug"
	"go-daw/queue"
)

// Waveform is the oscillator shape.
type Waveform int32

const (
	Sine Waveform = iota
	Square
	Saw
	Triangle
)

var waveNames = [...]string{"sine", "square", "saw", "triangle"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveNames) {
		return "unknown"
	}
	return waveNames[w]
}

// ParseWaveform maps a name back to a Waveform.
func ParseWaveform(name string) (Waveform, error) {
	for i, n := range waveNames {
		if n == name {
			return Waveform(i), nil
		}
	}
	return Sine, fmt.Errorf("synth: unknown waveform %q", name)
}

// MaxVoices is the polyphony of an Oscillator. The oldest voice is stolen
// when all are busy.
const MaxVoices = 32

const commandCapacity = 256

type cmdKind uint8

const (
	cmdOn cmdKind = iota
	cmdOff
	cmdAllOff
)

type command struct {
	kind     cmdKind
	note     uint8
	velocity uint8
	channel  uint8
	pan      float32
	scope    Scope
}

type oscVoice struct {
	active    bool
	releasing bool
	note      uint8
	channel   uint8
	phase     float64 // 0..1
	inc       float64
	amp       float64
	env       float64
	panL      float32
	panR      float32
	age       uint64
}

// OscillatorOptions configures an Oscillator.
type OscillatorOptions struct {
	Waveform Waveform
	Attack   time.Duration // default 5ms
	Release  time.Duration // default 80ms
	Gain     float64       // per-voice level, default 0.25
}

// Oscillator is a small polyphonic synth with a linear attack/release
// envelope. Note commands cross to the audio goroutine through a lock-free
// ring drained at the start of every RenderAudio call.
type Oscillator struct {
	sampleRate  float64
	attackStep  float64
	releaseStep float64
	gain        float64
	wave        atomic.Int32

	cmds    *queue.Bounded[command]
	dropped atomic.Uint64
	playing atomic.Int32

	// audio goroutine only
	voices [MaxVoices]oscVoice
	clock  uint64
}

// NewOscillator creates an oscillator for sampleRate.
func NewOscillator(sampleRate float64, opts OscillatorOptions) *Oscillator {
	if opts.Attack <= 0 {
		opts.Attack = 5 * time.Millisecond
	}
	if opts.Release <= 0 {
		opts.Release = 80 * time.Millisecond
	}
	if opts.Gain <= 0 {
		opts.Gain = 0.25
	}
	cmds, _ := queue.NewBounded[command](commandCapacity)
	o := &Oscillator{
		sampleRate:  sampleRate,
		attackStep:  1 / (opts.Attack.Seconds() * sampleRate),
		releaseStep: 1 / (opts.Release.Seconds() * sampleRate),
		gain:        opts.Gain,
		cmds:        cmds,
	}
	o.wave.Store(int32(opts.Waveform))
	return o
}

func (o *Oscillator) SetWaveform(w Waveform) { o.wave.Store(int32(w)) }
func (o *Oscillator) Waveform() Waveform     { return Waveform(o.wave.Load()) }

// Voices returns how many voices were sounding after the last render.
func (o *Oscillator) Voices() int { return int(o.playing.Load()) }

// Dropped counts note commands lost to a full command ring.
func (o *Oscillator) Dropped() uint64 { return o.dropped.Load() }

func (o *Oscillator) send(c command) {
	if !o.cmds.Enqueue(c) {
		o.dropped.Add(1)
		debug.LogEvery(100, "synth", "oscillator command ring full, dropped %d", o.dropped.Load())
	}
}

func (o *Oscillator) PlayNote(note, velocity, channel uint8, pan float32) {
	o.send(command{kind: cmdOn, note: note, velocity: velocity, channel: channel, pan: pan})
}

func (o *Oscillator) StopNote(note uint8) {
	o.send(command{kind: cmdOff, note: note})
}

func (o *Oscillator) StopAllNotes(scope Scope) {
	o.send(command{kind: cmdAllOff, scope: scope})
}

func (o *Oscillator) apply(c command) {
	switch c.kind {
	case cmdOn:
		v := o.freeVoice()
		o.clock++
		l, r := panGains(c.pan)
		*v = oscVoice{
			active:  true,
			note:    c.note,
			channel: c.channel,
			inc:     NoteHz(c.note) / o.sampleRate,
			amp:     float64(c.velocity) / 127,
			panL:    l,
			panR:    r,
			age:     o.clock,
		}
	case cmdOff:
		for i := range o.voices {
			v := &o.voices[i]
			if v.active && v.note == c.note {
				v.releasing = true
			}
		}
	case cmdAllOff:
		for i := range o.voices {
			v := &o.voices[i]
			if v.active && c.scope.Matches(v.channel) {
				v.releasing = true
			}
		}
	}
}

func (o *Oscillator) freeVoice() *oscVoice {
	oldest := &o.voices[0]
	for i := range o.voices {
		v := &o.voices[i]
		if !v.active {
			return v
		}
		if v.age < oldest.age {
			oldest = v
		}
	}
	return oldest
}

// Reset discards pending commands and silences every voice at once. Call
// it only while RenderAudio is not running.
func (o *Oscillator) Reset() {
	for {
		if _, ok := o.cmds.Dequeue(); !ok {
			break
		}
	}
	clear(o.voices[:])
	o.clock = 0
	o.playing.Store(0)
}

// RenderAudio adds the sounding voices into left and right.
func (o *Oscillator) RenderAudio(left, right []float32) {
	for {
		c, ok := o.cmds.Dequeue()
		if !ok {
			break
		}
		o.apply(c)
	}

	wave := o.Waveform()
	n := min(len(left), len(right))
	playing := int32(0)
	for vi := range o.voices {
		v := &o.voices[vi]
		if !v.active {
			continue
		}
		for i := range n {
			if v.releasing {
				v.env -= o.releaseStep
				if v.env <= 0 {
					v.active = false
					break
				}
			} else if v.env < 1 {
				v.env = min(1, v.env+o.attackStep)
			}
			s := float32(shape(wave, v.phase) * v.amp * v.env * o.gain)
			left[i] += s * v.panL
			right[i] += s * v.panR
			v.phase += v.inc
			if v.phase >= 1 {
				v.phase--
			}
		}
		if v.active {
			playing++
		}
	}
	o.playing.Store(playing)
}

func shape(w Waveform, phase float64) float64 {
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Saw:
		return 2*phase - 1
	case Triangle:
		return 4*math.Abs(phase-0.5) - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}
