package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-daw/daw"
	"go-daw/debug"
	"go-daw/dsp"
	"go-daw/midi"
	"go-daw/sequencer"
	"go-daw/theme"
	"go-daw/widgets"
)

const (
	meterWidth    = 32
	spectrumWidth = 48
	bpmStep       = 5
)

type Model struct {
	Session *daw.Session
	Theme   *theme.Theme
	Ports   *midi.Watcher // may be nil

	status   sequencer.Status
	updates  chan sequencer.Status
	listener sequencer.ListenerID

	selected int // index into the master chain
	addType  int // next dsp.Types entry offered by "a"
	message  string
	quitting bool
}

// TickMsg redraws meters and the transport line.
type TickMsg time.Time

type PortEventMsg midi.PortEvent

// StatusMsg carries a transport update from the scheduler.
type StatusMsg sequencer.Status

// NewModel registers the model as a scheduler listener. Only the newest
// status is kept when the UI falls behind.
func NewModel(session *daw.Session, ports *midi.Watcher, th *theme.Theme) Model {
	sched := session.Scheduler()
	updates := make(chan sequencer.Status, 1)
	id := sched.AddListener(func(st sequencer.Status) {
		for {
			select {
			case updates <- st:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	return Model{
		Session:  session,
		Theme:    th,
		Ports:    ports,
		status:   sched.Status(),
		updates:  updates,
		listener: id,
	}
}

func ListenForStatus(updates <-chan sequencer.Status) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg(<-updates)
	}
}

func (m Model) refresh() time.Duration {
	return time.Duration(m.Session.Config().UI.RefreshMs) * time.Millisecond
}

func Tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func ListenForPorts(w *midi.Watcher) tea.Cmd {
	if w == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-w.Events()
		if !ok {
			return nil
		}
		return PortEventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(Tick(m.refresh()), ListenForStatus(m.updates), ListenForPorts(m.Ports))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		next, cmd := m.handleKey(msg.String())
		// settings changed while stopped produce no listener update
		next.status = m.Session.Scheduler().Status()
		return next, cmd

	case StatusMsg:
		m.status = sequencer.Status(msg)
		return m, ListenForStatus(m.updates)

	case TickMsg:
		return m, Tick(m.refresh())

	case PortEventMsg:
		ev := midi.PortEvent(msg)
		verb := "connected"
		if ev.Type == midi.PortDisconnected {
			verb = "disconnected"
		}
		m.message = fmt.Sprintf("midi %s %s: %s", ev.Dir, verb, ev.Name)
		return m, ListenForPorts(m.Ports)
	}
	return m, nil
}

func (m Model) handleKey(key string) (Model, tea.Cmd) {
	s := m.Session
	sched := s.Scheduler()
	eng := s.Engine()
	master := eng.MasterChain()

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		sched.RemoveListener(m.listener)
		s.Stop()
		return m, tea.Quit

	case " ", "p":
		if err := s.Toggle(); err != nil {
			m.message = err.Error()
		}

	case "s":
		s.Stop()

	case "l":
		s.SetLooping(!sched.Looping())

	case "m":
		if s.Muted() {
			s.Unmute()
		} else {
			s.Mute()
		}

	case "d":
		eng.SetEnableDSP(!eng.DSPEnabled())

	case "+", "=":
		sched.SetBPM(sched.BPM() + bpmStep)

	case "-", "_":
		sched.SetBPM(sched.BPM() - bpmStep)

	case "0":
		sched.SetBPM(0)

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		idx := int(key[0] - '1')
		if lanes := sched.Lanes(); idx < len(lanes) {
			lanes[idx].SetMuted(!lanes[idx].Muted())
		}

	case "[":
		eng.SetVolume(max(0, eng.Volume()-0.05))

	case "]":
		eng.SetVolume(min(4, eng.Volume()+0.05))

	case "up", "k":
		m.selected = max(0, m.selected-1)

	case "down", "j":
		m.selected = min(max(0, master.Len()-1), m.selected+1)

	case "b":
		if b, ok := master.At(m.selected); ok {
			b.SetActive(!b.Active())
		}

	case "a":
		types := dsp.Types()
		if len(types) == 0 {
			break
		}
		name := types[m.addType%len(types)]
		m.addType++
		b, err := eng.NewBlock(name)
		if err != nil {
			m.message = err.Error()
			break
		}
		eng.AddDSPBlock(b)
		m.selected = master.Len() - 1
		m.message = "added " + name

	case "x":
		if b, ok := master.At(m.selected); ok {
			if err := eng.RemoveDSPBlock(b); err != nil {
				m.message = err.Error()
			}
			m.selected = min(m.selected, max(0, master.Len()-1))
		}

	case "w":
		path := s.Config().Engine.ChainPreset
		if path == "" {
			m.message = "no chain preset path configured"
			break
		}
		if err := eng.SaveChains(path); err != nil {
			m.message = err.Error()
			debug.Log("tui", "save chains: %v", err)
			break
		}
		m.message = "chains saved to " + path
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.Theme
	s := m.Session
	st := m.status

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	activeStyle := lipgloss.NewStyle().Foreground(th.Active())
	cursorStyle := lipgloss.NewStyle().Foreground(th.Cursor())

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(m.header(st)))
	out.WriteString("\n")
	out.WriteString(m.progress(st))
	out.WriteString("\n\n")

	// Tracks
	for i, t := range s.Scheduler().Lanes() {
		mark := th.Symbols.Active
		style := activeStyle
		if t.Muted() {
			mark = th.Symbols.Inactive
			style = dimStyle
		}
		line := fmt.Sprintf(" %d %s %-20s %4d notes", i+1, string(mark), trackName(t), len(t.Notes))
		out.WriteString(style.Render(line))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	// Meters
	l, r := s.Engine().GetCurrentVolumeDB()
	out.WriteString(widgets.RenderMeter(th, "L", float64(l), meterWidth))
	out.WriteString("\n")
	out.WriteString(widgets.RenderMeter(th, "R", float64(r), meterWidth))
	out.WriteString("\n\n")

	// Master chain
	dspState := "on"
	if !s.Engine().DSPEnabled() {
		dspState = "off"
	}
	out.WriteString(dimStyle.Render(fmt.Sprintf("master chain (dsp %s)", dspState)))
	out.WriteString("\n")
	blocks := s.Engine().MasterChain().Blocks()
	if len(blocks) == 0 {
		out.WriteString(dimStyle.Render("  empty"))
		out.WriteString("\n")
	}
	for i, b := range blocks {
		cursor := " "
		if i == m.selected {
			cursor = string(th.Symbols.Cursor)
		}
		line := fmt.Sprintf("%s %s", cursor, describeBlock(b))
		switch {
		case i == m.selected:
			out.WriteString(cursorStyle.Render(line))
		case !b.Active():
			out.WriteString(dimStyle.Render(line))
		default:
			out.WriteString(line)
		}
		out.WriteString("\n")
	}

	if s.Config().UI.ShowSpectra {
		if spec := s.Spectrum(); spec != nil {
			out.WriteString("\n")
			out.WriteString(widgets.RenderSpectrum(th, spec, spectrumWidth))
			out.WriteString("\n")
		}
	}

	if m.message != "" {
		out.WriteString("\n")
		out.WriteString(dimStyle.Render(m.message))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(helpSections)))
	return out.String()
}

func (m Model) header(st sequencer.Status) string {
	sym := m.Theme.Symbols
	state := string(sym.Stop) + " STOP"
	if st.State == sequencer.StatePlaying {
		state = string(sym.Play) + " PLAY"
	}
	flags := ""
	if st.Looping {
		flags += " " + string(sym.Loop)
	}
	if m.Session.Muted() {
		flags += " " + string(sym.Muted)
	}
	audio := ""
	if err := m.Session.AudioErr(); err != nil {
		audio = "  (no audio)"
	}
	return fmt.Sprintf("go-daw  %s  %5.1fbpm  vol %.2f%s%s",
		state, st.BPM, m.Session.Engine().Volume(), flags, audio)
}

func (m Model) progress(st sequencer.Status) string {
	width := meterWidth + 2
	pos := 0
	if st.MaxTick > 0 {
		pos = int(float64(st.Tick) / float64(st.MaxTick) * float64(width))
	}
	pos = min(pos, width)
	bar := strings.Repeat(string(m.Theme.Symbols.BarFull), pos) +
		strings.Repeat(string(m.Theme.Symbols.BarEmpty), width-pos)
	return fmt.Sprintf("%s %d/%d", lipgloss.NewStyle().Foreground(m.Theme.Accent()).Render(bar), st.Tick, st.MaxTick)
}

func trackName(t *sequencer.Track) string {
	if t.Name == "" {
		return "untitled"
	}
	return t.Name
}

// describeBlock lists a block's type and its parameters as name=value.
func describeBlock(b dsp.Block) string {
	parts := []string{b.TypeName()}
	for i, d := range b.Params() {
		v, _ := b.Param(i)
		switch d.Kind {
		case dsp.ParamBool:
			parts = append(parts, fmt.Sprintf("%s=%t", d.Name, v >= 0.5))
		case dsp.ParamInt:
			parts = append(parts, fmt.Sprintf("%s=%d", d.Name, int(v)))
		default:
			parts = append(parts, fmt.Sprintf("%s=%.3g", d.Name, v))
		}
	}
	if !b.Active() {
		parts = append(parts, "(bypassed)")
	}
	return strings.Join(parts, " ")
}

var helpSections = []widgets.KeySection{
	{Title: "transport", Keys: []widgets.KeyBinding{
		{Key: "space/p", Desc: "play/stop"},
		{Key: "s", Desc: "stop"},
		{Key: "l", Desc: "loop"},
		{Key: "+/- 0", Desc: "tempo override, clear"},
		{Key: "1-9", Desc: "mute track"},
	}},
	{Title: "mixer", Keys: []widgets.KeyBinding{
		{Key: "m", Desc: "mute output"},
		{Key: "[ ]", Desc: "volume"},
		{Key: "d", Desc: "dsp on/off"},
		{Key: "j/k a x b", Desc: "select, add, remove, bypass block"},
		{Key: "w", Desc: "save chains"},
		{Key: "q", Desc: "quit"},
	}},
}
