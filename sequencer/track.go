package sequencer

import (
	"slices"
	"sync/atomic"
)

// Note is one note in ticks. Length 0 is a trigger: on and off in the same
// scan.
type Note struct {
	ID       int   `json:"id"`
	Pitch    uint8 `json:"pitch"`
	Velocity uint8 `json:"velocity"`
	Start    int64 `json:"start"`
	Length   int64 `json:"length"`
}

// End returns the tick the note releases at.
func (n Note) End() int64 {
	return n.Start + n.Length
}

// Track is an ordered note list routed to one synth.
// The flags are atomic so the UI can toggle them while playing.
type Track struct {
	Name    string
	Channel uint8  // MIDI channel, 0-15
	Synth   string // synth to play on; empty = built-in oscillator
	Notes   []Note // sorted by Start

	nextID   int
	muted    atomic.Bool
	solo     atomic.Bool
	inactive atomic.Bool
}

// NewTrack creates a new empty track with the given name and MIDI channel.
func NewTrack(name string, channel uint8) *Track {
	return &Track{
		Name:    name,
		Channel: channel & 0x0F,
	}
}

// AddNote inserts n keeping Notes sorted by Start, after any notes with the
// same start. A zero ID is replaced by the next free one.
func (t *Track) AddNote(n Note) Note {
	if n.Length < 0 {
		n.Length = 0
	}
	if n.ID == 0 {
		for _, existing := range t.Notes {
			t.nextID = max(t.nextID, existing.ID)
		}
		t.nextID++
		n.ID = t.nextID
	}
	i, _ := slices.BinarySearchFunc(t.Notes, n.Start+1, func(e Note, start int64) int {
		if e.Start < start {
			return -1
		}
		return 1
	})
	t.Notes = slices.Insert(t.Notes, i, n)
	return n
}

// RemoveNote deletes the note with the given ID.
func (t *Track) RemoveNote(id int) bool {
	i := slices.IndexFunc(t.Notes, func(n Note) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	t.Notes = slices.Delete(t.Notes, i, i+1)
	return true
}

// End returns the last release tick on the track.
func (t *Track) End() int64 {
	var end int64
	for _, n := range t.Notes {
		end = max(end, n.End())
	}
	return end
}

func (t *Track) SetMuted(m bool) { t.muted.Store(m) }
func (t *Track) Muted() bool     { return t.muted.Load() }
func (t *Track) SetSolo(s bool)  { t.solo.Store(s) }
func (t *Track) Solo() bool      { return t.solo.Load() }

// SetActive enables or disables the track. Inactive tracks are silent and
// ignored by solo.
func (t *Track) SetActive(a bool) { t.inactive.Store(!a) }
func (t *Track) Active() bool     { return !t.inactive.Load() }
