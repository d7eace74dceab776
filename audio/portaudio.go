//go:build !headless

package audio

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend enumerates and opens devices through PortAudio.
type PortAudioBackend struct {
	mu      sync.Mutex
	devices map[string]*portaudio.DeviceInfo
	closed  bool
}

// NewPortAudioBackend initialises PortAudio. Close terminates it.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	return &PortAudioBackend{devices: make(map[string]*portaudio.DeviceInfo)}, nil
}

func (*PortAudioBackend) Name() string { return "portaudio" }

func (b *PortAudioBackend) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultOutputDevice()

	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.devices)
	var out []Device
	for i, info := range infos {
		if info.MaxOutputChannels <= 0 {
			continue
		}
		id := strconv.Itoa(i)
		b.devices[id] = info
		name := info.Name
		if info.HostApi != nil {
			name = info.HostApi.Name + ": " + info.Name
		}
		out = append(out, Device{
			ID:       id,
			Name:     name,
			Channels: info.MaxOutputChannels,
			Default:  def != nil && info.Name == def.Name && info.HostApi == def.HostApi,
		})
	}
	return out, nil
}

func (b *PortAudioBackend) Open(dev Device, cfg StreamConfig, cb Callback) (Stream, error) {
	b.mu.Lock()
	info, ok := b.devices[dev.ID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("portaudio: unknown device %q", dev.ID)
	}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: cfg.Channels,
			Latency:  info.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BlockSize,
	}
	s := &paStream{}
	stream, err := portaudio.OpenStream(params, func(out []float32) { cb(out) })
	if err != nil {
		return nil, err
	}
	s.stream = stream
	return s, nil
}

// Close terminates PortAudio.
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return portaudio.Terminate()
}

type paStream struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
}

func (s *paStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.running = true
	return nil
}

func (s *paStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.stream.Stop()
}

func (s *paStream) Close() error {
	s.Stop()
	return s.stream.Close()
}

func (s *paStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func init() {
	register("portaudio", func() (Backend, error) {
		b, err := NewPortAudioBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}
