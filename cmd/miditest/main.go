package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go-daw/midi"
	"go-daw/synth"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	defer midi.CloseDriver()

	arg := ""
	if len(os.Args) > 2 {
		arg = os.Args[2]
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "scale":
		playScale(arg)
	case "keys":
		monitorKeys(arg)
	case "watch":
		watchPorts()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list         - List all MIDI ports")
	fmt.Println("  scale <out>  - Play a C major scale on an output port")
	fmt.Println("  keys <in>    - Print notes from an input port")
	fmt.Println("  watch        - Report ports as they come and go")
}

func listPorts() {
	fmt.Println("(waiting up to 3 seconds...)")

	ins, outs, err := midi.ListPorts()
	if errors.Is(err, midi.ErrTimeout) {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("=== MIDI Input Ports ===")
	for i, name := range ins {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, name := range outs {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

func playScale(name string) {
	out, err := midi.OpenOutput(name)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}
	defer out.Close()
	fmt.Printf("Using output: %s\n", out.Name())

	for _, note := range []uint8{60, 62, 64, 65, 67, 69, 71, 72} {
		out.PlayNote(note, 100, 0, 0)
		time.Sleep(250 * time.Millisecond)
		out.StopNote(note)
	}
	out.StopAllNotes(synth.AllChannels)
	fmt.Println("Done!")
}

func monitorKeys(name string) {
	kb, err := midi.OpenKeyboard(name)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}
	defer kb.Close()

	fmt.Printf("Listening on %s. Ctrl+C to exit.\n", kb.ID())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-kb.Events():
			state := "off"
			if ev.On {
				state = "on "
			}
			fmt.Printf("[%s] ch%-2d %s note %3d (%7.1fHz) vel %3d\n",
				time.Now().Format("15:04:05.000"), ev.Channel+1, state, ev.Note,
				synth.NoteHz(ev.Note), ev.Velocity)
		}
	}
}

func watchPorts() {
	fmt.Println("Watching for MIDI port changes. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := midi.NewWatcher()
	go w.Run(ctx)

	for ev := range w.Events() {
		verb := "connected"
		if ev.Type == midi.PortDisconnected {
			verb = "disconnected"
		}
		fmt.Printf("[%s] %s %s: %s\n", time.Now().Format("15:04:05"), ev.Dir, verb, ev.Name)
	}
}
