package sequencer

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordDispatcher struct {
	mu     sync.Mutex
	events []NoteEvent
	offs   []int
}

func (d *recordDispatcher) Dispatch(track int, ev NoteEvent) bool {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
	return true
}

func (d *recordDispatcher) AllNotesOff(track int) {
	d.mu.Lock()
	d.offs = append(d.offs, track)
	d.mu.Unlock()
}

func (d *recordDispatcher) take() []NoteEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	evs := d.events
	d.events = nil
	return evs
}

func oneNote(start, length, seqLen int64) *Sequence {
	seq := NewSequence("test", 480)
	seq.AddTrack("t", 2).AddNote(Note{Pitch: 60, Velocity: 100, Start: start, Length: length})
	seq.Length = seqLen
	return seq
}

func offline(t *testing.T, src *Sequence) (*Scheduler, *recordDispatcher, *ManualClock) {
	t.Helper()
	d := &recordDispatcher{}
	clk := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(d, Options{Clock: clk})
	if err := s.SetSequence(src); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginOffline(); err != nil {
		t.Fatal(err)
	}
	return s, d, clk
}

func TestScanClosedWindows(t *testing.T) {
	d := &recordDispatcher{}
	s := NewScheduler(d, Options{})
	s.SetSequence(oneNote(0, 480, 1920))

	s.mu.Lock()
	s.scan(0, 480)
	s.flush()
	s.mu.Unlock()

	evs := d.take()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want on+off: %+v", len(evs), evs)
	}
	if !evs[0].On || evs[0].Tick != 0 || evs[0].Channel != 2 || evs[0].Pitch != 60 {
		t.Fatalf("first event %+v, want on at 0", evs[0])
	}
	if evs[1].On || evs[1].Tick != 480 {
		t.Fatalf("second event %+v, want off at 480", evs[1])
	}

	s.mu.Lock()
	s.scan(480, 960)
	s.flush()
	s.mu.Unlock()
	if evs := d.take(); len(evs) != 0 {
		t.Fatalf("second window emitted %+v", evs)
	}
}

func TestOfflineEventGeneration(t *testing.T) {
	s, d, clk := offline(t, oneNote(0, 480, 1920))

	if _, ok := s.Advance(); !ok {
		t.Fatal("finished early")
	}
	evs := d.take()
	if len(evs) != 1 || !evs[0].On || evs[0].Tick != 0 {
		t.Fatalf("first advance %+v, want on at 0", evs)
	}

	clk.Advance(501 * time.Millisecond)
	st, _ := s.Advance()
	if st.Tick != 480 {
		t.Fatalf("tick = %d, want 480", st.Tick)
	}
	evs = d.take()
	if len(evs) != 1 || evs[0].On || evs[0].Tick != 480 {
		t.Fatalf("second advance %+v, want off at 480", evs)
	}

	clk.Advance(500 * time.Millisecond)
	s.Advance()
	if evs := d.take(); len(evs) != 0 {
		t.Fatalf("(480, 960] emitted %+v", evs)
	}

	// no clock movement, no work
	s.Advance()
	if evs := d.take(); len(evs) != 0 {
		t.Fatalf("idle advance emitted %+v", evs)
	}
	s.EndOffline()
	if s.Playing() {
		t.Fatal("still playing after EndOffline")
	}
}

func TestLooping(t *testing.T) {
	s, d, clk := offline(t, oneNote(0, 240, 480))
	s.SetLooping(true)

	var mu sync.Mutex
	loops := 0
	s.AddListener(func(st Status) {
		if st.Looped {
			mu.Lock()
			loops++
			mu.Unlock()
		}
	})

	s.Advance()
	clk.Advance(251 * time.Millisecond)
	s.Advance()
	clk.Advance(250 * time.Millisecond)
	st, ok := s.Advance()
	if !ok || st.Tick != 0 {
		t.Fatalf("after wrap: tick %d, playing %v", st.Tick, ok)
	}
	s.Advance()

	ons := 0
	for _, ev := range d.take() {
		if ev.On {
			ons++
		}
	}
	if ons != 2 {
		t.Fatalf("note started %d times, want 2 (once per pass)", ons)
	}
	mu.Lock()
	defer mu.Unlock()
	if loops != 1 {
		t.Fatalf("listener saw %d loops", loops)
	}
}

func TestFinishWithoutLooping(t *testing.T) {
	s, d, clk := offline(t, oneNote(0, 240, 0))

	finished := make(chan Status, 1)
	s.AddListener(func(st Status) {
		if st.Finished {
			finished <- st
		}
	})

	s.Advance()
	clk.Advance(251 * time.Millisecond)
	if _, ok := s.Advance(); ok {
		t.Fatal("Advance reported playing past the end")
	}
	select {
	case st := <-finished:
		if st.Tick != 240 || st.State != StateStopped {
			t.Fatalf("finished status %+v", st)
		}
	default:
		t.Fatal("no finished status")
	}
	evs := d.take()
	if len(evs) != 2 || evs[1].On {
		t.Fatalf("events %+v", evs)
	}
	d.mu.Lock()
	offs := len(d.offs)
	d.mu.Unlock()
	if offs != 1 {
		t.Fatalf("AllNotesOff called %d times", offs)
	}
	if s.Stop() {
		t.Fatal("Stop after finish reported playing")
	}
}

func TestMuteReleasesSoundingNote(t *testing.T) {
	seq := oneNote(0, 960, 1920)
	s, d, clk := offline(t, seq)
	s.Advance()
	d.take()

	seq.Tracks[0].SetMuted(true)
	clk.Advance(101 * time.Millisecond)
	st, _ := s.Advance()
	evs := d.take()
	if len(evs) != 1 || evs[0].On || evs[0].Tick != st.Tick {
		t.Fatalf("mute emitted %+v, want one off at %d", evs, st.Tick)
	}

	// the note started before unmuting, so it stays silent
	seq.Tracks[0].SetMuted(false)
	clk.Advance(101 * time.Millisecond)
	s.Advance()
	if evs := d.take(); len(evs) != 0 {
		t.Fatalf("unmute replayed %+v", evs)
	}
}

func TestSolo(t *testing.T) {
	seq := NewSequence("solo", 480)
	seq.Length = 1920
	seq.AddTrack("a", 0).AddNote(Note{Pitch: 60, Start: 0, Length: 100})
	b := seq.AddTrack("b", 1)
	b.AddNote(Note{Pitch: 62, Start: 0, Length: 100})
	b.SetSolo(true)
	c := seq.AddTrack("c", 2)
	c.AddNote(Note{Pitch: 64, Start: 0, Length: 100})
	c.SetSolo(true)
	c.SetActive(false)

	s, d, _ := offline(t, seq)
	s.Advance()
	evs := d.take()
	if len(evs) != 1 || evs[0].Track != 1 || evs[0].Pitch != 62 {
		t.Fatalf("events %+v, want only the soloed active track", evs)
	}
}

func TestEventOrdering(t *testing.T) {
	seq := NewSequence("order", 480)
	seq.Length = 1920
	tr := seq.AddTrack("t", 0)
	tr.AddNote(Note{Pitch: 60, Start: 0, Length: 480})
	tr.AddNote(Note{Pitch: 60, Start: 480, Length: 480})
	tr.AddNote(Note{Pitch: 70, Start: 480, Length: 0})

	s, d, clk := offline(t, seq)
	s.Advance()
	d.take()
	clk.Advance(501 * time.Millisecond)
	s.Advance()

	evs := d.take()
	if len(evs) != 4 {
		t.Fatalf("events %+v", evs)
	}
	// release of the first 60, onsets, then the trigger's release
	if evs[0].On || evs[0].Pitch != 60 || evs[0].Start != 0 {
		t.Fatalf("evs[0] = %+v", evs[0])
	}
	if !evs[1].On || !evs[2].On {
		t.Fatalf("onsets out of order: %+v", evs)
	}
	if evs[3].On || evs[3].Pitch != 70 {
		t.Fatalf("evs[3] = %+v", evs[3])
	}
}

func TestTempoChangeReanchors(t *testing.T) {
	seq := oneNote(0, 10, 4800)
	seq.Tempo, _ = NewTempoCurve(TempoPoint{Tick: 0, BPM: 120}, TempoPoint{Tick: 480, BPM: 60})
	s, _, clk := offline(t, seq)

	s.Advance()
	clk.Advance(501 * time.Millisecond)
	st, _ := s.Advance()
	if st.Tick != 480 || st.BPM != 60 {
		t.Fatalf("status %+v, want tick 480 at 60 bpm", st)
	}
	clk.Advance(501 * time.Millisecond)
	st, _ = s.Advance()
	if st.Tick != 720 {
		t.Fatalf("tick = %d, want 720 after half a second at 60 bpm", st.Tick)
	}
}

func TestLinearRampKeepsTime(t *testing.T) {
	ramp, err := NewTempoCurve(
		TempoPoint{Tick: 0, BPM: 120},
		TempoPoint{Tick: 1920, BPM: 90, Interp: Linear},
	)
	if err != nil {
		t.Fatal(err)
	}
	due := ramp.Duration(0, 1920, 480)

	for _, step := range []time.Duration{1300 * time.Microsecond, 10 * time.Millisecond} {
		seq := oneNote(0, 10, 3840)
		seq.Tempo = ramp
		s, _, clk := offline(t, seq)
		s.Advance()
		for elapsed := time.Duration(0); elapsed < due; {
			d := min(step, due-elapsed)
			clk.Advance(d)
			elapsed += d
			s.Advance()
		}
		// one tick of slack for truncation and the per-window tempo
		if tick := s.Tick(); tick < 1918 || tick > 1920 {
			t.Errorf("step %v: tick %d after %v, want 1920", step, tick, due)
		}
		s.EndOffline()
	}
}

func TestSetBPMOverride(t *testing.T) {
	s, _, clk := offline(t, oneNote(0, 10, 48000))
	s.Advance()
	s.SetBPM(240)
	clk.Advance(101 * time.Millisecond)
	s.Advance() // re-anchors at the new tempo
	before := s.Tick()
	clk.Advance(251 * time.Millisecond)
	st, _ := s.Advance()
	// the new tempo counts from when tick 96 fell due (100 ms), so 252 ms
	// at 240 bpm and 480 ppq have passed: 483.8 ticks
	if got := st.Tick - before; got != 483 && got != 484 {
		t.Fatalf("advanced %d ticks at 240 bpm", got)
	}
}

func TestArrangementLanes(t *testing.T) {
	verse := NewSequence("verse", 480)
	verse.AddTrack("v", 0).AddNote(Note{Pitch: 60, Start: 0, Length: 240})
	chorus := NewSequence("chorus", 480)
	chorus.AddTrack("c", 1).AddNote(Note{Pitch: 72, Start: 0, Length: 240})

	arr := NewArrangement("song", 480)
	arr.AddClip(verse, 0)
	arr.AddClip(chorus, 480)

	d := &recordDispatcher{}
	clk := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(d, Options{Clock: clk})
	if err := s.SetArrangement(arr); err != nil {
		t.Fatal(err)
	}
	if s.Mode() != ModeArrangement || len(s.Lanes()) != 2 {
		t.Fatalf("mode %v, %d lanes", s.Mode(), len(s.Lanes()))
	}
	s.BeginOffline()
	s.Advance()
	clk.Advance(501 * time.Millisecond)
	s.Advance()

	var chorusOn *NoteEvent
	for _, ev := range d.take() {
		if ev.On && ev.Track == 1 {
			chorusOn = &ev
		}
	}
	if chorusOn == nil || chorusOn.Tick != 480 || chorusOn.Channel != 1 {
		t.Fatalf("chorus onset %+v, want lane 1 at 480", chorusOn)
	}
}

func TestStateErrors(t *testing.T) {
	s := NewScheduler(&recordDispatcher{}, Options{})
	if err := s.Play(); !errors.Is(err, ErrNoSequence) {
		t.Fatalf("Play without sequence = %v", err)
	}
	if s.Stop() {
		t.Fatal("Stop when stopped reported true")
	}

	s.SetSequence(oneNote(0, 10, 480*1000))
	if err := s.Play(); err != nil {
		t.Fatal(err)
	}
	if err := s.Play(); !errors.Is(err, ErrAlreadyPlaying) {
		t.Fatalf("second Play = %v", err)
	}
	if err := s.SetTick(0); !errors.Is(err, ErrAlreadyPlaying) {
		t.Fatalf("SetTick while playing = %v", err)
	}
	if err := s.SetSequence(nil); !errors.Is(err, ErrAlreadyPlaying) {
		t.Fatalf("SetSequence while playing = %v", err)
	}
	if !s.Stop() {
		t.Fatal("Stop while playing reported false")
	}
	if s.Stop() {
		t.Fatal("second Stop reported true")
	}
}

func TestLivePlayback(t *testing.T) {
	d := &recordDispatcher{}
	s := NewScheduler(d, Options{})
	// 48 ticks at 120 bpm is 50 ms
	s.SetSequence(oneNote(0, 48, 96))

	done := make(chan struct{})
	var once sync.Once
	s.AddListener(func(st Status) {
		if st.Finished {
			once.Do(func() { close(done) })
		}
	})
	if err := s.Play(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Stop()
		t.Fatal("playback never finished")
	}

	evs := d.take()
	if len(evs) != 2 || !evs[0].On || evs[1].On || evs[1].Tick != 48 {
		t.Fatalf("events %+v", evs)
	}
	if s.Playing() {
		t.Fatal("still playing after finish")
	}
	// playing again restarts from the top
	if err := s.Play(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}

func TestReplayWaitsForPreviousRun(t *testing.T) {
	d := &recordDispatcher{}
	s := NewScheduler(d, Options{})
	s.SetSequence(oneNote(0, 10, 240))

	if err := s.Play(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Playing() {
		if time.Now().After(deadline) {
			s.Stop()
			t.Fatal("playback never finished")
		}
		time.Sleep(100 * time.Microsecond)
	}

	// the finished run may still be releasing lanes; Play must wait for it
	if err := s.Play(); err != nil {
		t.Fatal(err)
	}
	d.mu.Lock()
	offs := len(d.offs)
	d.mu.Unlock()
	if offs != 1 {
		t.Fatalf("%d lane releases when the second run started, want the first run's 1", offs)
	}
	s.Stop()
}

func TestListeners(t *testing.T) {
	s, _, _ := offline(t, oneNote(0, 10, 480))
	var mu sync.Mutex
	calls := map[string]int{}
	a := s.AddListener(func(Status) { mu.Lock(); calls["a"]++; mu.Unlock() })
	s.AddListener(func(Status) { mu.Lock(); calls["b"]++; mu.Unlock() })

	s.Advance()
	if !s.RemoveListener(a) || s.RemoveListener(a) {
		t.Fatal("RemoveListener")
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls["a"] != 1 || calls["b"] != 2 {
		t.Fatalf("calls %v", calls)
	}
}

func TestNoteLookBackRescansBoundary(t *testing.T) {
	seq := NewSequence("dense", 480)
	seq.Length = 4800
	tr := seq.AddTrack("t", 0)
	for i := 0; i < 20; i++ {
		tr.AddNote(Note{Pitch: uint8(40 + i), Start: int64(i * 10), Length: 5})
	}
	s, d, clk := offline(t, seq)
	for i := 0; i < 40; i++ {
		s.Advance()
		clk.Advance(7 * time.Millisecond)
	}
	ons, offs := 0, 0
	for _, ev := range d.take() {
		if ev.On {
			ons++
		} else {
			offs++
		}
	}
	if ons != 20 || offs != 20 {
		t.Fatalf("%d ons, %d offs, want 20 each", ons, offs)
	}
	s.mu.Lock()
	cursor := s.lanes[0].cursor
	s.mu.Unlock()
	if cursor != 20 {
		t.Fatalf("cursor = %d, want past every note", cursor)
	}
}
