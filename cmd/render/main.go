// Command render bounces a MIDI file to a WAV file without touching an audio
// device.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-daw/config"
	"go-daw/daw"
	"go-daw/debug"
)

func main() {
	cfgPath := flag.String("config", "", "config file for sample rate, volume and chain preset")
	out := flag.String("o", "", "output WAV path (defaults to the input name with .wav)")
	tail := flag.Duration("tail", 2*time.Second, "silence rendered after the last note")
	rate := flag.Int("rate", 0, "sample rate override")
	dry := flag.Bool("dry", false, "bypass the effect chains")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] song.mid\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *verbose {
		debug.SetOutput(os.Stderr)
	}

	in := flag.Arg(0)
	if *out == "" {
		*out = strings.TrimSuffix(in, filepath.Ext(in)) + ".wav"
	}

	if err := render(in, *out, *cfgPath, *rate, *dry, *tail); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

func render(in, out, cfgPath string, rate int, dry bool, tail time.Duration) error {
	cfg := config.DefaultConfig()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadFile(cfgPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if rate > 0 {
		cfg.Audio.SampleRate = rate
	}
	if dry {
		cfg.Engine.DSPEnabled = false
	}
	// offline rendering uses the oscillators only
	cfg.MIDI.OutputPort = ""

	s, err := daw.NewSession(cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadFile(in); err != nil {
		return fmt.Errorf("load %s: %w", in, err)
	}
	return s.RenderOfflineFile(out, tail)
}
