// Package synth holds the sound sources the engine mixes and the router that
// carries scheduler note events to them.
package synth

import (
	"math"
)

// Scope selects the notes StopAllNotes releases.
type Scope int

// AllChannels releases every sounding note regardless of channel.
const AllChannels Scope = -1

// Channel scopes StopAllNotes to one MIDI channel.
func Channel(ch uint8) Scope { return Scope(ch & 0x0F) }

// Matches reports whether ch falls inside the scope.
func (s Scope) Matches(ch uint8) bool {
	return s == AllChannels || Scope(ch&0x0F) == s
}

// Synth is a note-driven sound source. Note methods are called from control
// goroutines; RenderAudio is called on the audio goroutine and adds into
// left and right.
type Synth interface {
	PlayNote(note, velocity, channel uint8, pan float32)
	StopNote(note uint8)
	StopAllNotes(scope Scope)
	RenderAudio(left, right []float32)
}

// NoteHz is the equal-tempered frequency of a MIDI note, A4 = 440 Hz.
func NoteHz(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

// panGains is a constant-power pan law for pan in [-1, 1].
func panGains(pan float32) (l, r float32) {
	p := max(-1, min(1, float64(pan)))
	a := (p + 1) * math.Pi / 4
	return float32(math.Cos(a)), float32(math.Sin(a))
}
