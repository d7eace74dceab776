package audio

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go-daw/debug"
)

const DefaultBlockSize = 512

type rendererRef struct{ r Renderer }

// Worker runs the output stream. The callback reads the mute flag once per
// invocation and never locks or allocates.
type Worker struct {
	backend     Backend
	preferred   string
	maxChannels int

	mu     sync.Mutex
	stream Stream
	device Device
	cfg    StreamConfig

	channels int       // of the open stream, fixed while it runs
	scratch  []float32 // stereo, for devices that are not stereo

	renderer atomic.Pointer[rendererRef]
	muted    atomic.Bool
	applyDSP atomic.Bool
	frames   atomic.Uint64
}

// NewWorker creates a stopped worker on b.
func NewWorker(b Backend) *Worker {
	w := &Worker{backend: b, maxChannels: 2}
	w.applyDSP.Store(true)
	return w
}

// SetPreferredDevice makes Start try the device with this name or ID first.
func (w *Worker) SetPreferredDevice(name string) {
	w.mu.Lock()
	w.preferred = name
	w.mu.Unlock()
}

// SetMaxChannels caps the stream channel count at 1 (mono) or 2.
func (w *Worker) SetMaxChannels(n int) {
	w.mu.Lock()
	w.maxChannels = max(1, min(2, n))
	w.mu.Unlock()
}

// SetRenderer swaps the render source. nil makes the callback write silence.
func (w *Worker) SetRenderer(r Renderer) {
	if r == nil {
		w.renderer.Store(nil)
		return
	}
	w.renderer.Store(&rendererRef{r: r})
}

func (w *Worker) SetApplyDSP(on bool) { w.applyDSP.Store(on) }

func (w *Worker) Mute()       { w.muted.Store(true) }
func (w *Worker) Unmute()     { w.muted.Store(false) }
func (w *Worker) Muted() bool { return w.muted.Load() }

// Frames counts frames handed to the device, silent ones included.
func (w *Worker) Frames() uint64 { return w.frames.Load() }

// Device returns the open device.
func (w *Worker) Device() (Device, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.device, w.stream != nil
}

func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stream != nil && w.stream.Running()
}

// candidates orders devices: preferred, then system default, then the rest
// in backend order.
func candidates(devs []Device, preferred string) []Device {
	out := slices.Clone(devs)
	rank := func(d Device) int {
		switch {
		case preferred != "" && (d.Name == preferred || d.ID == preferred):
			return 0
		case d.Default:
			return 1
		default:
			return 2
		}
	}
	slices.SortStableFunc(out, func(a, b Device) int { return rank(a) - rank(b) })
	return out
}

// Start opens the first device that opens and reports itself running. With
// no usable device it returns an error wrapping ErrNoDevice; the caller is
// expected to carry on without sound.
func (w *Worker) Start(sampleRate, blockSize int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream != nil {
		return ErrRunning
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	devs, err := w.backend.Devices()
	if err != nil {
		debug.Log("audio", "%s: list devices: %v", w.backend.Name(), err)
		return fmt.Errorf("%w: %w", ErrNoDevice, err)
	}

	var errs []error
	for _, d := range candidates(devs, w.preferred) {
		cfg := StreamConfig{
			SampleRate: sampleRate,
			BlockSize:  blockSize,
			Channels:   max(1, min(w.maxChannels, d.Channels)),
		}
		w.channels = cfg.Channels
		if len(w.scratch) < 2*blockSize {
			w.scratch = make([]float32, 2*blockSize)
		}

		s, err := w.backend.Open(d, cfg, w.callback)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name, err))
			continue
		}
		if err := s.Start(); err != nil {
			s.Close()
			errs = append(errs, fmt.Errorf("%s: start: %w", d.Name, err))
			continue
		}
		if !s.Running() {
			s.Close()
			errs = append(errs, fmt.Errorf("%s: stream not running", d.Name))
			continue
		}

		w.stream, w.device, w.cfg = s, d, cfg
		debug.Log("audio", "%s: opened %q %d Hz, %d ch, block %d", w.backend.Name(), d.Name, sampleRate, cfg.Channels, blockSize)
		return nil
	}

	err = ErrNoDevice
	if len(errs) > 0 {
		err = fmt.Errorf("%w: %w", ErrNoDevice, errors.Join(errs...))
	}
	debug.Log("audio", "%s: %v", w.backend.Name(), err)
	return err
}

// Stop stops and closes the stream. Stopping a stopped worker is a no-op.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream == nil {
		return nil
	}
	s := w.stream
	w.stream, w.device = nil, Device{}
	errStop := s.Stop()
	errClose := s.Close()
	debug.Log("audio", "stream closed after %d frames", w.frames.Load())
	return errors.Join(errStop, errClose)
}

func (w *Worker) callback(out []float32) {
	ch := w.channels
	frames := len(out) / ch
	muted := w.muted.Load()
	ref := w.renderer.Load()
	w.frames.Add(uint64(frames))

	if ref == nil {
		clear(out)
		return
	}
	applyDSP := w.applyDSP.Load()
	if ch == 2 && !muted {
		ref.r.Render(out, frames, applyDSP)
		return
	}

	// render stereo into scratch a block at a time, then fold to the
	// device layout. Muted output is still rendered and thrown away so
	// synth command rings and envelopes keep pace with the transport.
	block := len(w.scratch) / 2
	for done := 0; done < frames; {
		n := min(block, frames-done)
		st := w.scratch[:2*n]
		ref.r.Render(st, n, applyDSP)
		if !muted {
			for i := range n {
				out[done+i] = (st[2*i] + st[2*i+1]) / 2
			}
		}
		done += n
	}
	if muted {
		clear(out)
	}
}
