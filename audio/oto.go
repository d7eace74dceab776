//go:build !headless

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process, created on first Open and reused.
var (
	otoMu  sync.Mutex
	otoCtx *oto.Context
	otoCfg StreamConfig
)

func otoContext(cfg StreamConfig) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		if cfg.SampleRate != otoCfg.SampleRate || cfg.Channels != otoCfg.Channels {
			return nil, fmt.Errorf("oto context already open at %d Hz, %d ch", otoCfg.SampleRate, otoCfg.Channels)
		}
		return otoCtx, nil
	}
	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(float64(cfg.BlockSize) / float64(cfg.SampleRate) * float64(time.Second)),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	otoCtx, otoCfg = ctx, cfg
	return ctx, nil
}

// OtoBackend plays through the system default device with oto's pull model.
type OtoBackend struct{}

func NewOtoBackend() *OtoBackend { return &OtoBackend{} }

func (*OtoBackend) Name() string { return "oto" }

// oto cannot enumerate devices, so there is only the system default.
func (*OtoBackend) Devices() ([]Device, error) {
	return []Device{{ID: "default", Name: "system default", Channels: 2, Default: true}}, nil
}

func (*OtoBackend) Open(_ Device, cfg StreamConfig, cb Callback) (Stream, error) {
	ctx, err := otoContext(cfg)
	if err != nil {
		return nil, err
	}
	s := &otoStream{
		cb:  cb,
		buf: make([]float32, 4*cfg.BlockSize*cfg.Channels),
	}
	s.player = ctx.NewPlayer(s)
	return s, nil
}

type otoStream struct {
	cb     Callback
	buf    []float32
	player *oto.Player
}

// Read is called by oto on its own goroutine.
func (s *otoStream) Read(p []byte) (int, error) {
	n := len(p) / 4
	if len(s.buf) < n {
		// only when oto asks for more than it was sized for
		s.buf = make([]float32, n)
	}
	samples := s.buf[:n]
	s.cb(samples)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	return 4 * n, nil
}

func (s *otoStream) Start() error {
	s.player.Play()
	return nil
}

func (s *otoStream) Stop() error {
	s.player.Pause()
	return nil
}

func (s *otoStream) Close() error {
	return s.player.Close()
}

func (s *otoStream) Running() bool {
	return s.player.IsPlaying()
}

func init() {
	register("oto", func() (Backend, error) { return NewOtoBackend(), nil })
}
