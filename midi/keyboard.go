package midi

import (
	"context"
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-daw/debug"
	"go-daw/synth"
)

// KeyEvent is a note played on an input device.
type KeyEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
	On       bool
}

// Keyboard listens to an input port and delivers KeyEvents.
type Keyboard struct {
	id       string
	stopFunc func()
	events   chan KeyEvent
	once     sync.Once

	mu     sync.RWMutex // held for reading while a callback sends
	closed bool
}

// OpenKeyboard starts listening on the input port matching name.
func OpenKeyboard(name string) (*Keyboard, error) {
	in, err := findIn(name)
	if err != nil {
		return nil, err
	}
	return NewKeyboard(in)
}

// NewKeyboard starts listening on in.
func NewKeyboard(in drivers.In) (*Keyboard, error) {
	kb := newKeyboard(in.String())
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		kb.handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", kb.id, err)
	}
	kb.stopFunc = stop
	debug.Log("midi", "keyboard %q listening", kb.id)
	return kb, nil
}

func newKeyboard(id string) *Keyboard {
	return &Keyboard{id: id, events: make(chan KeyEvent, 32)}
}

func (kb *Keyboard) handle(msg gomidi.Message) {
	var ch, note, vel uint8
	var ev KeyEvent
	switch {
	case msg.GetNoteStart(&ch, &note, &vel):
		ev = KeyEvent{Note: note, Velocity: vel, Channel: ch, On: true}
	case msg.GetNoteEnd(&ch, &note):
		ev = KeyEvent{Note: note, Channel: ch}
	default:
		return
	}
	// the driver callback must not block, and may still be running while
	// Close tears the channel down
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if kb.closed {
		return
	}
	select {
	case kb.events <- ev:
	default:
	}
}

func (kb *Keyboard) ID() string { return kb.id }

// Events delivers key presses and releases. Full buffers drop events.
func (kb *Keyboard) Events() <-chan KeyEvent { return kb.events }

// Forward plays incoming keys on s until ctx is done or the keyboard closes.
func (kb *Keyboard) Forward(ctx context.Context, s synth.Synth, pan float32) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-kb.events:
			if !ok {
				return
			}
			if ev.On {
				s.PlayNote(ev.Note, ev.Velocity, ev.Channel, pan)
			} else {
				s.StopNote(ev.Note)
			}
		}
	}
}

func (kb *Keyboard) Close() error {
	kb.once.Do(func() {
		if kb.stopFunc != nil {
			kb.stopFunc()
		}
		kb.mu.Lock()
		kb.closed = true
		close(kb.events)
		kb.mu.Unlock()
	})
	return nil
}
