package sequencer

import (
	"errors"
	"slices"
	"sync"
	"time"

	"go-daw/debug"
)

var (
	ErrAlreadyPlaying = errors.New("sequencer: already playing")
	ErrNoSequence     = errors.New("sequencer: no sequence or arrangement bound")
)

// PlaybackMode selects what the scheduler plays.
type PlaybackMode int

const (
	ModeSequence PlaybackMode = iota
	ModeArrangement
)

func (m PlaybackMode) String() string {
	if m == ModeArrangement {
		return "arrangement"
	}
	return "sequence"
}

// State is the transport state. Looping is a separate flag.
type State int

const (
	StateStopped State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "stopped"
}

// noteLookBack is how many notes behind its cursor a lane rescans each
// iteration, to pick up notes that land on a window boundary out of order.
const noteLookBack = 8

const (
	DefaultInterval       = time.Millisecond
	DefaultStatusInterval = 10 * time.Millisecond
)

// Options configures a Scheduler.
type Options struct {
	Clock          Clock         // default SystemClock
	Interval       time.Duration // longest sleep between iterations
	StatusInterval time.Duration // shortest gap between routine status updates
}

// Status is what listeners receive.
type Status struct {
	State    State
	Mode     PlaybackMode
	Tick     int64
	MaxTick  int64
	BPM      float64
	Looping  bool
	Looped   bool // this update wrapped to tick 0
	Finished bool // reached the end without looping
	Dropped  uint64
}

type noteState uint8

const (
	notePending noteState = iota
	noteOn
	noteDone
)

// lane is one track as the scheduler plays it: notes shifted to timeline
// ticks plus per-note scan state.
type lane struct {
	track    *Track
	notes    []Note
	state    []noteState
	cursor   int
	sounding int
}

func (l *lane) reset() {
	clear(l.state)
	l.cursor = 0
	l.sounding = 0
}

// Scheduler advances musical time against a clock and emits note events
// to a Dispatcher.
//
// The loop goroutine and control calls share mu; listeners run outside it.
// Stop must not be called from a listener.
type Scheduler struct {
	out         Dispatcher
	clock       Clock
	interval    time.Duration
	statusEvery time.Duration

	mu        sync.Mutex
	mode      PlaybackMode
	seq       *Sequence
	arr       *Arrangement
	lanes     []*lane
	tempo     *TempoCurve
	override  *TempoCurve // SetBPM
	ppq       int
	maxTick   int64
	looping   bool
	state     State
	offline   bool
	primed    bool // the window starting at tick has been scanned
	tick      int64
	startTick int64
	startWall time.Time
	msPerTick float64
	bpm       float64
	dropped   uint64
	lastNote  time.Time
	events    []NoteEvent // scratch, reused every scan
	stop      chan struct{}
	done      chan struct{}

	lmu       sync.Mutex
	listeners []listener
	nextID    ListenerID
}

// ListenerID identifies a registered listener.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn func(Status)
}

// NewScheduler creates a stopped scheduler that sends events to out.
func NewScheduler(out Dispatcher, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	return &Scheduler{
		out:         out,
		clock:       opts.Clock,
		interval:    opts.Interval,
		statusEvery: opts.StatusInterval,
		ppq:         DefaultPPQ,
		tempo:       ConstantTempo(120),
		events:      make([]NoteEvent, 0, 64),
	}
}

// SetSequence binds seq and switches to sequence mode. It rewinds to 0.
func (s *Scheduler) SetSequence(seq *Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		return ErrAlreadyPlaying
	}
	s.seq = seq
	s.mode = ModeSequence
	s.tick = 0
	s.rebuild()
	return nil
}

// SetArrangement binds arr and switches to arrangement mode. It rewinds to 0.
func (s *Scheduler) SetArrangement(arr *Arrangement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		return ErrAlreadyPlaying
	}
	s.arr = arr
	s.mode = ModeArrangement
	s.tick = 0
	s.rebuild()
	return nil
}

// rebuild snapshots the bound source into lanes. mu must be held.
func (s *Scheduler) rebuild() {
	s.lanes = s.lanes[:0]
	s.maxTick = 0
	switch s.mode {
	case ModeSequence:
		if s.seq == nil {
			return
		}
		s.ppq = s.seq.PPQ
		s.tempo = s.seq.TempoMap()
		s.maxTick = s.seq.MaxTick()
		for _, t := range s.seq.Tracks {
			s.addLane(t, 0, s.seq.PPQ)
		}
	case ModeArrangement:
		if s.arr == nil {
			return
		}
		s.ppq = s.arr.PPQ
		s.tempo = s.arr.TempoMap()
		s.maxTick = s.arr.MaxTick()
		for _, c := range s.arr.Clips {
			for _, t := range c.Sequence.Tracks {
				s.addLane(t, c.Offset, c.Sequence.PPQ)
			}
		}
	}
	if s.ppq <= 0 {
		s.ppq = DefaultPPQ
	}
	if s.override != nil {
		s.tempo = s.override
	}
}

func (s *Scheduler) addLane(t *Track, offset int64, ppq int) {
	l := &lane{
		track: t,
		notes: make([]Note, len(t.Notes)),
		state: make([]noteState, len(t.Notes)),
	}
	for i, n := range t.Notes {
		n.Start = offset + rescale(n.Start, ppq, s.ppq)
		n.Length = rescale(n.Length, ppq, s.ppq)
		l.notes[i] = n
	}
	s.lanes = append(s.lanes, l)
}

func (s *Scheduler) hasSource() bool {
	if s.mode == ModeArrangement {
		return s.arr != nil
	}
	return s.seq != nil
}

// Lanes returns the track behind each lane index used in NoteEvent.Track.
// In sequence mode lane i is Tracks[i]; in arrangement mode lanes run clip
// by clip.
func (s *Scheduler) Lanes() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracks := make([]*Track, len(s.lanes))
	for i, l := range s.lanes {
		tracks[i] = l.track
	}
	return tracks
}

func (s *Scheduler) Mode() PlaybackMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Scheduler) SetLooping(on bool) {
	s.mu.Lock()
	s.looping = on
	s.mu.Unlock()
}

func (s *Scheduler) Looping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.looping
}

func (s *Scheduler) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// SetTick moves the play position. It fails while playing.
func (s *Scheduler) SetTick(t int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		return ErrAlreadyPlaying
	}
	s.tick = max(0, min(t, s.maxTick))
	s.resetLanes()
	return nil
}

func (s *Scheduler) Playing() bool {
	return s.State() == StatePlaying
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BPM returns the tempo the scheduler is currently counting with.
func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		return s.bpm
	}
	return s.tempo.BPMAt(s.tick)
}

// SetBPM overrides the source tempo with a constant one; 0 clears the
// override. A playing scheduler picks it up on its next iteration.
func (s *Scheduler) SetBPM(bpm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bpm <= 0 {
		s.override = nil
		s.rebuildTempo()
		return
	}
	s.override = ConstantTempo(max(20, min(bpm, 300)))
	s.tempo = s.override
	debug.Log("sched", "tempo override %.1f", bpm)
}

func (s *Scheduler) rebuildTempo() {
	switch {
	case s.mode == ModeSequence && s.seq != nil:
		s.tempo = s.seq.TempoMap()
	case s.mode == ModeArrangement && s.arr != nil:
		s.tempo = s.arr.TempoMap()
	default:
		s.tempo = ConstantTempo(120)
	}
}

// Status returns a snapshot of the transport.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Scheduler) status() Status {
	bpm := s.bpm
	if s.state != StatePlaying {
		bpm = s.tempo.BPMAt(s.tick)
	}
	return Status{
		State:   s.state,
		Mode:    s.mode,
		Tick:    s.tick,
		MaxTick: s.maxTick,
		BPM:     bpm,
		Looping: s.looping,
		Dropped: s.dropped,
	}
}

// Play starts the loop goroutine from the current tick.
func (s *Scheduler) Play() error {
	if err := s.settle(); err != nil {
		debug.Log("sched", "play refused: %v", err)
		return err
	}
	s.mu.Lock()
	if err := s.start(); err != nil {
		s.mu.Unlock()
		debug.Log("sched", "play refused: %v", err)
		return err
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.stop, s.done = stop, done
	st := s.status()
	s.mu.Unlock()

	go s.run(stop, done)
	s.notify(st)
	return nil
}

// BeginOffline starts playback without a goroutine. The caller drives it
// with Advance, typically against a ManualClock.
func (s *Scheduler) BeginOffline() error {
	if err := s.settle(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.start(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.offline = true
	st := s.status()
	s.mu.Unlock()

	s.notify(st)
	return nil
}

// settle waits for the goroutine of the previous run to exit, final
// AllNotesOff included, so two runs never overlap. It must not be called
// from a listener.
func (s *Scheduler) settle() error {
	s.mu.Lock()
	playing, done := s.state == StatePlaying, s.done
	s.mu.Unlock()
	if playing {
		return ErrAlreadyPlaying
	}
	if done != nil {
		<-done
	}
	return nil
}

// start anchors the transport. mu must be held.
func (s *Scheduler) start() error {
	if s.state == StatePlaying {
		return ErrAlreadyPlaying
	}
	if !s.hasSource() {
		return ErrNoSequence
	}
	s.rebuild()
	if s.tick >= s.maxTick {
		s.tick = 0
	}
	s.resetLanes()
	s.anchor(s.clock.Now(), s.tick)
	s.primed = false
	s.offline = false
	s.state = StatePlaying
	debug.Log("sched", "play from tick %d at %.2f bpm (%d lanes, max %d)", s.tick, s.bpm, len(s.lanes), s.maxTick)
	return nil
}

// Advance runs one iteration against the clock. It reports false once
// playback has stopped or finished.
func (s *Scheduler) Advance() (Status, bool) {
	cont, _ := s.step(true)
	return s.Status(), cont
}

// EndOffline stops an offline run.
func (s *Scheduler) EndOffline() {
	s.Stop()
}

// Stop halts playback, releases sounding notes and silences every lane.
// It reports false when nothing was playing.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		debug.Log("sched", "stop: was not playing")
		return false
	}
	s.state = StateStopped
	offline := s.offline
	stop, done := s.stop, s.done
	s.releaseAll(s.tick)
	s.flush()
	for i := range s.lanes {
		s.out.AllNotesOff(i)
	}
	s.resetLanes()
	s.offline = false
	st := s.status()
	s.mu.Unlock()

	if !offline {
		close(stop)
		<-done
	}
	debug.Log("sched", "stopped at tick %d", st.Tick)
	s.notify(st)
	return true
}

func (s *Scheduler) run(stop, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-stop:
			return
		default:
		}
		cont, wait := s.step(false)
		if !cont {
			return
		}
		timer.Reset(wait)
		select {
		case <-stop:
			return
		case <-timer.C:
		}
	}
}

// step is one loop iteration. It returns whether to keep going and how long
// to sleep first.
func (s *Scheduler) step(offline bool) (bool, time.Duration) {
	s.mu.Lock()
	if s.state != StatePlaying || s.offline != offline {
		s.mu.Unlock()
		return false, 0
	}

	now := s.clock.Now()
	target := s.targetTick(now)
	lo := s.tick
	var hi int64
	if offline {
		if target <= lo && s.primed {
			s.mu.Unlock()
			return true, 0
		}
		hi = max(target, lo)
	} else {
		// at least one tick per iteration so coarse timers still progress
		hi = max(target, lo+1)
	}
	s.primed = true

	var looped, finished bool
	if hi >= s.maxTick {
		s.scan(lo, s.maxTick)
		s.releaseAll(s.maxTick)
		if s.looping && s.maxTick > 0 {
			s.tick = 0
			s.resetLanes()
			s.anchor(now, 0)
			s.primed = false
			looped = true
		} else {
			s.tick = s.maxTick
			s.state = StateStopped
			s.offline = false
			finished = true
		}
	} else {
		s.scan(lo, hi)
		s.tick = hi
		if bpm := s.tempo.BPMAt(hi); bpm != s.bpm {
			// pin to when tick hi fell due, not now, so a ramp keeps the
			// fraction of a tick already elapsed
			s.anchor(s.startWall.Add(s.ticksToDuration(hi-s.startTick)), hi)
		}
	}
	s.flush()

	var wait time.Duration
	if !finished {
		next := s.startWall.Add(s.ticksToDuration(s.tick + 1 - s.startTick))
		wait = max(0, min(next.Sub(now), s.interval))
	}

	notify := looped || finished || now.Sub(s.lastNote) >= s.statusEvery
	lanes := len(s.lanes)
	var st Status
	if notify {
		s.lastNote = now
		st = s.status()
		st.Looped, st.Finished = looped, finished
	}
	s.mu.Unlock()

	if looped {
		debug.Log("sched", "loop")
	}
	if finished {
		for i := range lanes {
			s.out.AllNotesOff(i)
		}
		debug.Log("sched", "finished at tick %d", st.Tick)
	}
	if notify {
		s.notify(st)
	}
	return !finished, wait
}

// anchor pins tick to now for elapsed-time math. mu must be held.
func (s *Scheduler) anchor(now time.Time, tick int64) {
	s.startWall = now
	s.startTick = tick
	s.bpm = s.tempo.BPMAt(tick)
	s.msPerTick = MsPerTick(s.bpm, s.ppq)
}

func (s *Scheduler) targetTick(now time.Time) int64 {
	elapsed := float64(now.Sub(s.startWall)) / float64(time.Millisecond)
	if elapsed < 0 {
		elapsed = 0
	}
	return s.startTick + int64(elapsed/s.msPerTick)
}

func (s *Scheduler) ticksToDuration(ticks int64) time.Duration {
	return time.Duration(float64(ticks) * s.msPerTick * float64(time.Millisecond))
}

func (s *Scheduler) resetLanes() {
	for _, l := range s.lanes {
		l.reset()
	}
}

// scan emits events for every note boundary in the closed window [lo, hi].
// Per-note state keeps a note from firing twice when consecutive windows
// share a tick.
func (s *Scheduler) scan(lo, hi int64) {
	anySolo := false
	for _, l := range s.lanes {
		if l.track.Active() && l.track.Solo() {
			anySolo = true
			break
		}
	}

	for i, l := range s.lanes {
		t := l.track
		if !t.Active() || t.Muted() || (anySolo && !t.Solo()) {
			// silent lanes still release what they were playing
			s.releaseLane(i, l, hi)
			continue
		}

		for j := max(0, l.cursor-noteLookBack); j < len(l.notes); j++ {
			n := l.notes[j]
			if n.Start > hi {
				break
			}
			switch l.state[j] {
			case notePending:
				if n.Start < lo {
					// began before playback reached it
					l.state[j] = noteDone
					continue
				}
				s.emit(i, l, n, true, n.Start)
				l.state[j] = noteOn
				l.sounding++
				fallthrough
			case noteOn:
				if n.End() <= hi {
					s.emit(i, l, n, false, n.End())
					l.state[j] = noteDone
					l.sounding--
				}
			}
		}
		for l.cursor < len(l.notes) && l.state[l.cursor] == noteDone {
			l.cursor++
		}
	}
}

// releaseLane sends offs for the sounding notes of one lane at tick.
func (s *Scheduler) releaseLane(i int, l *lane, tick int64) {
	for j := l.cursor; l.sounding > 0 && j < len(l.notes); j++ {
		if l.state[j] == noteOn {
			s.emit(i, l, l.notes[j], false, tick)
			l.state[j] = noteDone
			l.sounding--
		}
	}
}

func (s *Scheduler) releaseAll(tick int64) {
	for i, l := range s.lanes {
		s.releaseLane(i, l, tick)
	}
}

func (s *Scheduler) emit(i int, l *lane, n Note, on bool, tick int64) {
	s.events = append(s.events, NoteEvent{
		NoteID:   n.ID,
		Track:    i,
		Channel:  l.track.Channel,
		Pitch:    n.Pitch,
		Velocity: n.Velocity,
		Start:    n.Start,
		Length:   n.Length,
		Tick:     tick,
		On:       on,
	})
}

// eventRank orders events sharing a tick: releases first so a retriggered
// pitch is not cut off, then onsets, then the release of zero-length notes.
func eventRank(ev NoteEvent) int {
	switch {
	case ev.On:
		return 1
	case ev.Length == 0:
		return 2
	default:
		return 0
	}
}

// flush dispatches the scratch events in time order. mu must be held.
func (s *Scheduler) flush() {
	if len(s.events) == 0 {
		return
	}
	slices.SortStableFunc(s.events, func(a, b NoteEvent) int {
		if a.Tick != b.Tick {
			if a.Tick < b.Tick {
				return -1
			}
			return 1
		}
		return eventRank(a) - eventRank(b)
	})
	for _, ev := range s.events {
		if !s.out.Dispatch(ev.Track, ev) {
			s.dropped++
			debug.LogEvery(100, "sched", "dropped note event track=%d pitch=%d", ev.Track, ev.Pitch)
		}
	}
	s.events = s.events[:0]
}

// AddListener registers fn for status updates. fn runs on the scheduler
// goroutine or the caller of Play/Stop/Advance, and must not block.
func (s *Scheduler) AddListener(fn func(Status)) ListenerID {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, listener{id: s.nextID, fn: fn})
	return s.nextID
}

// RemoveListener unregisters id. It reports whether id was registered.
func (s *Scheduler) RemoveListener(id ListenerID) bool {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	i := slices.IndexFunc(s.listeners, func(l listener) bool { return l.id == id })
	if i < 0 {
		return false
	}
	s.listeners = slices.Delete(s.listeners, i, i+1)
	return true
}

func (s *Scheduler) notify(st Status) {
	s.lmu.Lock()
	ls := slices.Clone(s.listeners)
	s.lmu.Unlock()
	for _, l := range ls {
		l.fn(st)
	}
}
