// Package midi connects the engine to MIDI hardware: external synths on
// output ports, keyboards on input ports, and hot-plug detection.
package midi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var (
	ErrNoDriver     = errors.New("midi: no driver registered")
	ErrPortNotFound = errors.New("midi: port not found")
	ErrTimeout      = errors.New("midi: driver did not answer")
)

// PortTimeout bounds port enumeration. CoreMIDI can hang indefinitely.
const PortTimeout = 3 * time.Second

type portsResult struct {
	ins  []drivers.In
	outs []drivers.Out
}

func ports(timeout time.Duration) (portsResult, error) {
	if drivers.Get() == nil {
		return portsResult{}, ErrNoDriver
	}
	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()
	select {
	case r := <-ch:
		return r, nil
	case <-time.After(timeout):
		// user needs to run: sudo killall coreaudiod midiserver
		return portsResult{}, ErrTimeout
	}
}

// ListPorts returns the names of the input and output ports.
func ListPorts() (ins, outs []string, err error) {
	r, err := ports(PortTimeout)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range r.ins {
		ins = append(ins, p.String())
	}
	for _, p := range r.outs {
		outs = append(outs, p.String())
	}
	return ins, outs, nil
}

// matchPort picks the first name equal to want, ignoring case, or failing
// that the first that contains it.
func matchPort(names []string, want string) int {
	want = strings.ToLower(want)
	for i, n := range names {
		if strings.ToLower(n) == want {
			return i
		}
	}
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i
		}
	}
	return -1
}

func findOut(name string) (drivers.Out, error) {
	r, err := ports(PortTimeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(r.outs))
	for i, p := range r.outs {
		names[i] = p.String()
	}
	i := matchPort(names, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: output %q", ErrPortNotFound, name)
	}
	return r.outs[i], nil
}

func findIn(name string) (drivers.In, error) {
	r, err := ports(PortTimeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(r.ins))
	for i, p := range r.ins {
		names[i] = p.String()
	}
	i := matchPort(names, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: input %q", ErrPortNotFound, name)
	}
	return r.ins[i], nil
}

// CloseDriver releases the MIDI driver. Call it once at exit.
func CloseDriver() {
	if drivers.Get() != nil {
		gomidi.CloseDriver()
	}
}
