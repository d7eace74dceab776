package daw

import (
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// wavPrecision is bytes per sample: 16-bit PCM.
const wavPrecision = 2

type formatted interface {
	beep.Streamer
	Format(precision int) beep.Format
}

func encodeWAV(w io.WriteSeeker, s formatted) error {
	return wav.Encode(w, s, s.Format(wavPrecision))
}
