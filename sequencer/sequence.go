package sequencer

// DefaultPPQ is the tick resolution of new sequences.
const DefaultPPQ = 480

// DefaultMicrosPerQuarter is 120 BPM.
const DefaultMicrosPerQuarter = 500000

// Sequence is a set of tracks sharing one timeline.
type Sequence struct {
	Name             string
	PPQ              int
	MicrosPerQuarter int         // constant tempo when Tempo is nil
	Tempo            *TempoCurve // optional tempo track
	Tracks           []*Track
	Length           int64 // loop length in ticks; 0 = end of last note
}

// NewSequence creates an empty 120 BPM sequence. A ppq <= 0 means DefaultPPQ.
func NewSequence(name string, ppq int) *Sequence {
	if ppq <= 0 {
		ppq = DefaultPPQ
	}
	return &Sequence{
		Name:             name,
		PPQ:              ppq,
		MicrosPerQuarter: DefaultMicrosPerQuarter,
	}
}

// AddTrack appends a new track.
func (s *Sequence) AddTrack(name string, channel uint8) *Track {
	t := NewTrack(name, channel)
	s.Tracks = append(s.Tracks, t)
	return t
}

// MaxTick returns Length if set, else the last note release.
func (s *Sequence) MaxTick() int64 {
	if s.Length > 0 {
		return s.Length
	}
	var end int64
	for _, t := range s.Tracks {
		end = max(end, t.End())
	}
	return end
}

// TempoMap returns the tempo curve, or a constant curve built from
// MicrosPerQuarter.
func (s *Sequence) TempoMap() *TempoCurve {
	if s.Tempo != nil {
		return s.Tempo
	}
	return ConstantTempo(MicrosToBPM(s.MicrosPerQuarter))
}

// Clip places a sequence on an arrangement timeline.
type Clip struct {
	Sequence *Sequence
	Offset   int64 // in arrangement ticks
}

// Arrangement plays several sequences back to back or layered. Clip
// sequences with a different PPQ are rescaled to the arrangement's.
type Arrangement struct {
	Name  string
	PPQ   int
	Tempo *TempoCurve
	Clips []Clip
}

// NewArrangement creates an empty arrangement at 120 BPM.
func NewArrangement(name string, ppq int) *Arrangement {
	if ppq <= 0 {
		ppq = DefaultPPQ
	}
	return &Arrangement{Name: name, PPQ: ppq}
}

// AddClip places seq at offset.
func (a *Arrangement) AddClip(seq *Sequence, offset int64) {
	a.Clips = append(a.Clips, Clip{Sequence: seq, Offset: max(0, offset)})
}

// MaxTick returns the end of the last clip in arrangement ticks.
func (a *Arrangement) MaxTick() int64 {
	var end int64
	for _, c := range a.Clips {
		end = max(end, c.Offset+rescale(c.Sequence.MaxTick(), c.Sequence.PPQ, a.PPQ))
	}
	return end
}

// TempoMap returns the arrangement tempo, 120 BPM if unset.
func (a *Arrangement) TempoMap() *TempoCurve {
	if a.Tempo != nil {
		return a.Tempo
	}
	return ConstantTempo(120)
}

func rescale(tick int64, from, to int) int64 {
	if from == to || from <= 0 {
		return tick
	}
	return tick * int64(to) / int64(from)
}
