package midi

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-daw/debug"
	"go-daw/synth"
)

const ccAllNotesOff = 123

// OutputSynth plays notes on external MIDI hardware. It satisfies
// synth.Synth; RenderAudio adds nothing since the sound is made elsewhere.
type OutputSynth struct {
	name  string
	out   drivers.Out
	send  func(gomidi.Message) error
	mu    sync.Mutex
	held  map[uint8]uint8 // pitch -> channel it was started on
	fails int
}

// OpenOutput opens the output port matching name.
func OpenOutput(name string) (*OutputSynth, error) {
	out, err := findOut(name)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", name, err)
	}
	o := NewOutputSynth(out.String(), send)
	o.out = out
	debug.Log("midi", "output %q open", o.name)
	return o, nil
}

// NewOutputSynth wraps an already opened send function.
func NewOutputSynth(name string, send func(gomidi.Message) error) *OutputSynth {
	return &OutputSynth{name: name, send: send, held: make(map[uint8]uint8)}
}

func (o *OutputSynth) Name() string { return o.name }

// write must be called with mu held.
func (o *OutputSynth) write(msg gomidi.Message) {
	if err := o.send(msg); err != nil {
		o.fails++
		debug.LogEvery(50, "midi", "send to %q failed (%d): %v", o.name, o.fails, err)
	}
}

func (o *OutputSynth) PlayNote(note, velocity, channel uint8, pan float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	channel &= 0x0F
	if prev, ok := o.held[note]; ok {
		o.write(gomidi.NoteOff(prev, note))
	}
	o.held[note] = channel
	o.write(gomidi.NoteOn(channel, note, max(1, velocity)))
}

func (o *OutputSynth) StopNote(note uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, ok := o.held[note]
	if !ok {
		return
	}
	delete(o.held, note)
	o.write(gomidi.NoteOff(ch, note))
}

// StopAllNotes sends note offs for every held note in scope, then the All
// Notes Off controller for the channels in scope.
func (o *OutputSynth) StopAllNotes(scope synth.Scope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for note, ch := range o.held {
		if scope.Matches(ch) {
			o.write(gomidi.NoteOff(ch, note))
			delete(o.held, note)
		}
	}
	for ch := range uint8(16) {
		if scope.Matches(ch) {
			o.write(gomidi.ControlChange(ch, ccAllNotesOff, 0))
		}
	}
}

func (o *OutputSynth) RenderAudio(_, _ []float32) {}

// Close silences the device and closes the port.
func (o *OutputSynth) Close() error {
	o.StopAllNotes(synth.AllChannels)
	if o.out != nil {
		return o.out.Close()
	}
	return nil
}
