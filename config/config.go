package config

import (
	"encoding/json"
	"math/bits"
	"os"
	"path/filepath"
	"time"
)

// Backend names an audio output implementation
type Backend string

const (
	BackendAuto      Backend = "auto"
	BackendOto       Backend = "oto"
	BackendPortAudio Backend = "portaudio"
	BackendNull      Backend = "null"
)

// AudioConfig selects the output device and stream format
type AudioConfig struct {
	Backend    Backend `json:"backend,omitempty"`
	Device     string  `json:"device,omitempty"` // empty = default device first
	SampleRate int     `json:"sampleRate,omitempty"`
	BlockSize  int     `json:"blockSize,omitempty"`
	Channels   int     `json:"channels,omitempty"`
}

// EngineConfig stores mixer settings
type EngineConfig struct {
	Volume      float64 `json:"volume"`
	DSPEnabled  bool    `json:"dspEnabled"`
	ChainPreset string  `json:"chainPreset,omitempty"` // master/synth chains JSON
	Analyzer    bool    `json:"analyzer,omitempty"`
}

// PlaybackConfig stores transport settings
type PlaybackConfig struct {
	Loop       bool `json:"loop,omitempty"`
	IntervalUs int  `json:"intervalUs,omitempty"` // scheduler sleep cap
}

// Interval returns the scheduler sleep cap as a duration
func (p PlaybackConfig) Interval() time.Duration {
	return time.Duration(p.IntervalUs) * time.Microsecond
}

// MIDIConfig names external ports
type MIDIConfig struct {
	OutputPort string `json:"outputPort,omitempty"` // used for tracks without a synth
	InputPort  string `json:"inputPort,omitempty"`  // keyboard
	Channel    int    `json:"channel,omitempty"`    // keyboard notes are replayed on this channel
}

// QueueConfig sizes the note queues (power of two)
type QueueConfig struct {
	Capacity int `json:"capacity,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Theme       string `json:"theme,omitempty"`
	RefreshMs   int    `json:"refreshMs,omitempty"`
	LastFile    string `json:"lastFile,omitempty"`
	ShowSpectra bool   `json:"showSpectra,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Audio    AudioConfig    `json:"audio"`
	Engine   EngineConfig   `json:"engine"`
	Playback PlaybackConfig `json:"playback"`
	MIDI     MIDIConfig     `json:"midi,omitempty"`
	Queue    QueueConfig    `json:"queue,omitempty"`
	UI       UIConfig       `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:    BackendAuto,
			SampleRate: 48000,
			BlockSize:  512,
			Channels:   2,
		},
		Engine: EngineConfig{
			Volume:     0.8,
			DSPEnabled: true,
		},
		Playback: PlaybackConfig{
			IntervalUs: 1000,
		},
		Queue: QueueConfig{
			Capacity: 1024,
		},
		UI: UIConfig{
			Theme:     "default",
			RefreshMs: 33,
		},
	}
}

// Validate replaces out-of-range values with defaults
func (c *Config) Validate() {
	def := DefaultConfig()

	switch c.Audio.Backend {
	case BackendAuto, BackendOto, BackendPortAudio, BackendNull:
	default:
		c.Audio.Backend = def.Audio.Backend
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.BlockSize < 16 || c.Audio.BlockSize > 8192 {
		c.Audio.BlockSize = def.Audio.BlockSize
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		c.Audio.Channels = def.Audio.Channels
	}
	if c.Engine.Volume < 0 || c.Engine.Volume > 4 {
		c.Engine.Volume = def.Engine.Volume
	}
	if c.Playback.IntervalUs <= 0 || c.Playback.IntervalUs > 100000 {
		c.Playback.IntervalUs = def.Playback.IntervalUs
	}
	if c.MIDI.Channel < 0 || c.MIDI.Channel > 15 {
		c.MIDI.Channel = 0
	}
	// round capacity up to a power of two
	if c.Queue.Capacity < 2 || c.Queue.Capacity > 1<<20 {
		c.Queue.Capacity = def.Queue.Capacity
	} else if c.Queue.Capacity&(c.Queue.Capacity-1) != 0 {
		c.Queue.Capacity = 1 << bits.Len(uint(c.Queue.Capacity))
	}
	if c.UI.RefreshMs <= 0 {
		c.UI.RefreshMs = def.UI.RefreshMs
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-daw"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config from path. Missing fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Validate()
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
