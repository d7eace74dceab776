package engine

import (
	"github.com/gopxl/beep"
)

// Streamer adapts an Engine to beep.Streamer for offline export.
//
// Before each block it calls OnBlock, if set, with the number of frames
// about to be rendered; a false return ends the stream. Stream renders at
// most MaxBlock frames per OnBlock call so the caller can advance musical
// time in step with audio.
type Streamer struct {
	e        *Engine
	applyDSP bool
	buf      []float32

	OnBlock func(frames int) bool
	ended   bool
}

// Streamer returns a beep.Streamer over the engine output.
func (e *Engine) Streamer(applyDSP bool) *Streamer {
	return &Streamer{
		e:        e,
		applyDSP: applyDSP,
		buf:      make([]float32, 2*e.maxBlock),
	}
}

// Format is the beep format of the stream.
func (s *Streamer) Format(precision int) beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(s.e.sampleRate),
		NumChannels: 2,
		Precision:   precision,
	}
}

func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.ended {
		return 0, false
	}
	for n < len(samples) {
		frames := min(s.e.maxBlock, len(samples)-n)
		if s.OnBlock != nil && !s.OnBlock(frames) {
			s.ended = true
			break
		}
		s.e.Render(s.buf, frames, s.applyDSP)
		for i := range frames {
			samples[n+i][0] = float64(s.buf[2*i])
			samples[n+i][1] = float64(s.buf[2*i+1])
		}
		n += frames
	}
	return n, n > 0
}

func (s *Streamer) Err() error { return nil }
