package sequencer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var ErrTimeFormat = errors.New("sequencer: only metric-tick MIDI files are supported")

// LoadSMF reads a Standard MIDI File from disk.
func LoadSMF(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seq, err := ReadSMF(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if seq.Name == "" {
		seq.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return seq, nil
}

type openNote struct {
	start    int64
	velocity uint8
}

// ReadSMF converts a Standard MIDI File into a Sequence. Tempo meta events
// become Step tempo points; tracks without notes are dropped.
func ReadSMF(r io.Reader) (*Sequence, error) {
	file, err := smf.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	ticks, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, ErrTimeFormat
	}

	seq := NewSequence("", int(ticks.Resolution()))
	var tempo []TempoPoint

	for ti, events := range file.Tracks {
		var (
			abs     int64
			name    string
			channel = -1
			open    = make(map[uint16][]openNote)
			track   = &Track{}
		)
		for _, ev := range events {
			abs += int64(ev.Delta)
			msg := ev.Message

			var bpm float64
			var text string
			var ch, key, vel uint8
			switch {
			case msg.GetMetaTempo(&bpm):
				tempo = append(tempo, TempoPoint{Tick: abs, BPM: bpm})
			case msg.GetMetaTrackName(&text):
				if ti == 0 && seq.Name == "" {
					seq.Name = text
				}
				name = text
			case gomidi.Message(msg).GetNoteStart(&ch, &key, &vel):
				if channel < 0 {
					channel = int(ch)
				}
				k := uint16(ch)<<8 | uint16(key)
				open[k] = append(open[k], openNote{start: abs, velocity: vel})
			case gomidi.Message(msg).GetNoteEnd(&ch, &key):
				k := uint16(ch)<<8 | uint16(key)
				if stack := open[k]; len(stack) > 0 {
					// first in, first out for overlapping same-pitch notes
					on := stack[0]
					open[k] = stack[1:]
					track.AddNote(Note{Pitch: key, Velocity: on.velocity, Start: on.start, Length: abs - on.start})
				}
			}
		}
		// hanging notes end with the track
		for k, stack := range open {
			for _, on := range stack {
				track.AddNote(Note{Pitch: uint8(k), Velocity: on.velocity, Start: on.start, Length: abs - on.start})
			}
		}
		if len(track.Notes) == 0 {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("Track %d", len(seq.Tracks)+1)
		}
		track.Name = name
		track.Channel = uint8(max(channel, 0))
		seq.Tracks = append(seq.Tracks, track)
	}

	if len(tempo) > 0 {
		curve, err := buildTempo(tempo)
		if err != nil {
			return nil, err
		}
		seq.Tempo = curve
		seq.MicrosPerQuarter = int(60e6/curve.BPMAt(0) + 0.5)
	}
	return seq, nil
}

// buildTempo sorts points across tracks and keeps the last per tick.
func buildTempo(points []TempoPoint) (*TempoCurve, error) {
	slices.SortStableFunc(points, func(a, b TempoPoint) int {
		switch {
		case a.Tick < b.Tick:
			return -1
		case a.Tick > b.Tick:
			return 1
		}
		return 0
	})
	out := points[:0]
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Tick == p.Tick {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return NewTempoCurve(out...)
}

// boundaryRank puts offs before ons at the same tick so repeated pitches
// retrigger, except the off of a zero-length note, which follows its on.
func boundaryRank(on bool, n Note) int {
	return eventRank(NoteEvent{On: on, Length: n.Length})
}

// WriteSMF writes seq as a format 1 Standard MIDI File: a tempo track
// followed by one track per sequence track. Linear tempo ramps are written
// as their start points.
func WriteSMF(w io.Writer, seq *Sequence) error {
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(seq.PPQ)

	var conductor smf.Track
	conductor.Add(0, smf.MetaTrackSequenceName(seq.Name))
	var last int64
	for _, p := range seq.TempoMap().Points() {
		conductor.Add(uint32(p.Tick-last), smf.MetaTempo(p.BPM))
		last = p.Tick
	}
	conductor.Close(0)
	if err := file.Add(conductor); err != nil {
		return err
	}

	type boundary struct {
		tick int64
		on   bool
		note Note
	}
	for _, t := range seq.Tracks {
		events := make([]boundary, 0, 2*len(t.Notes))
		for _, n := range t.Notes {
			events = append(events, boundary{n.Start, true, n}, boundary{n.End(), false, n})
		}
		slices.SortStableFunc(events, func(a, b boundary) int {
			if a.tick != b.tick {
				if a.tick < b.tick {
					return -1
				}
				return 1
			}
			return boundaryRank(a.on, a.note) - boundaryRank(b.on, b.note)
		})

		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(t.Name))
		var prev int64
		for _, e := range events {
			delta := uint32(e.tick - prev)
			prev = e.tick
			if e.on {
				tr.Add(delta, gomidi.NoteOn(t.Channel, e.note.Pitch, max(1, e.note.Velocity)))
			} else {
				tr.Add(delta, gomidi.NoteOff(t.Channel, e.note.Pitch))
			}
		}
		tr.Close(0)
		if err := file.Add(tr); err != nil {
			return err
		}
	}

	_, err := file.WriteTo(w)
	return err
}

// SaveSMF writes seq to path.
func SaveSMF(path string, seq *Sequence) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSMF(f, seq); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
