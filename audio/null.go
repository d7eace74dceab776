package audio

import (
	"sync"
	"time"
)

// NullBackend drives the callback from a ticker at the stream's real-time
// rate and discards the output. It keeps playback and metering alive on
// machines without a sound card.
type NullBackend struct{}

func NewNullBackend() *NullBackend { return &NullBackend{} }

func (*NullBackend) Name() string { return "null" }

func (*NullBackend) Devices() ([]Device, error) {
	return []Device{{ID: "null", Name: "null output", Channels: 2, Default: true}}, nil
}

func (*NullBackend) Open(_ Device, cfg StreamConfig, cb Callback) (Stream, error) {
	block := cfg.BlockSize
	if block <= 0 {
		block = DefaultBlockSize
	}
	period := time.Duration(float64(block) / float64(max(1, cfg.SampleRate)) * float64(time.Second))
	return &nullStream{
		cb:     cb,
		buf:    make([]float32, block*max(1, cfg.Channels)),
		period: period,
	}, nil
}

type nullStream struct {
	cb     Callback
	buf    []float32
	period time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (s *nullStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop, s.done = make(chan struct{}), make(chan struct{})
	go s.run(s.stop, s.done)
	return nil
}

func (s *nullStream) run(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.cb(s.buf)
		}
	}
}

func (s *nullStream) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (s *nullStream) Close() error { return s.Stop() }

func (s *nullStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
