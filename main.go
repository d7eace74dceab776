package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-daw/audio"
	"go-daw/config"
	"go-daw/daw"
	"go-daw/debug"
	"go-daw/midi"
	"go-daw/theme"
	"go-daw/tui"
)

func main() {
	file := flag.String("file", "", "MIDI file to load (defaults to the last one opened)")
	cfgPath := flag.String("config", "", "config file (defaults to ~/.config/go-daw/config.json)")
	backend := flag.String("backend", "", "audio backend: auto, portaudio, oto, null")
	loop := flag.Bool("loop", false, "loop playback")
	analyzer := flag.Bool("analyzer", false, "show the output spectrum")
	export := flag.String("export", "", "render the file to this WAV path and exit")
	tail := flag.Duration("tail", 2*time.Second, "silence rendered after the last note when exporting")
	debugLog := flag.Bool("debug", false, "write a debug log to ~/.config/go-daw/debug.log")
	flag.Parse()

	if err := run(*file, *cfgPath, *backend, *loop, *analyzer, *export, *tail, *debugLog); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(file, cfgPath, backendName string, loop, analyzer bool, export string, tail time.Duration, debugLog bool) error {
	if debugLog {
		if err := debug.Enable(); err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		defer debug.Disable()
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if backendName != "" {
		cfg.Audio.Backend = config.Backend(backendName)
	}
	if loop {
		cfg.Playback.Loop = true
	}
	if analyzer {
		cfg.Engine.Analyzer = true
		cfg.UI.ShowSpectra = true
	}
	if file == "" {
		file = cfg.UI.LastFile
	}

	// exporting never needs a device
	var b audio.Backend
	if export == "" {
		b, err = audio.OpenBackend(string(cfg.Audio.Backend))
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
	}
	defer midi.CloseDriver()

	session, err := daw.NewSession(cfg, b)
	if err != nil {
		return err
	}
	defer session.Close()

	if file != "" {
		if err := session.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	if export != "" {
		if file == "" {
			return fmt.Errorf("-export needs -file")
		}
		if err := session.RenderOfflineFile(export, tail); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Printf("wrote %s\n", export)
		return nil
	}

	if file != "" && file != cfg.UI.LastFile {
		cfg.UI.LastFile = file
		if err := saveConfig(cfg, cfgPath); err != nil {
			debug.Log("main", "save config: %v", err)
		}
	}

	if cfg.MIDI.InputPort != "" {
		if err := session.AttachKeyboard(cfg.MIDI.InputPort); err != nil {
			debug.Log("main", "keyboard %q: %v", cfg.MIDI.InputPort, err)
		}
	}

	th, err := theme.Load(cfg.UI.Theme)
	if err != nil {
		debug.Log("main", "theme %q: %v, using default", cfg.UI.Theme, err)
		th, _ = theme.Load("")
	}

	// watch for MIDI hot-plug in the background
	ports := midi.NewWatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ports.Run(ctx)

	m := tui.NewModel(session, ports, th)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func saveConfig(cfg *config.Config, path string) error {
	if path == "" {
		return cfg.Save()
	}
	return cfg.SaveFile(path)
}
