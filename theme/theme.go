package theme

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Transport
	Play  rune // ▶ playing
	Stop  rune // ■ stopped
	Loop  rune // ↻ looping
	Muted rune // ∅ output muted

	// Meters
	BarFull  rune // █ lit segment
	BarEmpty rune // · unlit segment
	Peak     rune // │ peak hold marker

	// Lists
	Cursor   rune // ▸ selected row
	Active   rune // ● block/track on
	Inactive rune // ○ block/track bypassed
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Play:  '▶',
			Stop:  '■',
			Loop:  '↻',
			Muted: '∅',

			BarFull:  '█',
			BarEmpty: '·',
			Peak:     '│',

			Cursor:   '▸',
			Active:   '●',
			Inactive: '○',
		},
	}
}

// Load returns the named built-in theme, or reads a GIMP palette when name
// is a .gpl path.
func Load(name string) (*Theme, error) {
	if strings.HasSuffix(name, ".gpl") {
		p, err := LoadGPL(name)
		if err != nil {
			return nil, err
		}
		return New(p), nil
	}
	p, ok := builtin[name]
	if !ok {
		if name != "" && name != "default" {
			return nil, fmt.Errorf("theme: unknown palette %q", name)
		}
		p = builtin["plasma"]
	}
	return New(p), nil
}

// Level maps a meter position 0-1 onto the palette from Success through
// Warning to Active, so loud reads hot.
func (t *Theme) Level(norm float64) lipgloss.Color {
	switch {
	case norm >= 0.9:
		return t.Active()
	case norm >= 0.7:
		return t.Warning()
	default:
		return t.Success()
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0  // deep purple
	RoleSurface = 0.1  // dark purple
	RoleMuted   = 0.2  // purple-magenta
	RoleFG      = 0.4  // pink-purple (readable)
	RoleAccent  = 0.5  // vivid magenta
	RoleCursor  = 0.6  // rose pink
	RoleActive  = 0.7  // soft red
	RoleWarning = 0.8  // orange
	RoleSuccess = 1.0  // bright yellow
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

// RGB returns raw RGB for any normalized value
func (t *Theme) RGB(norm float64) RGB {
	return t.Palette.Lookup(norm)
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(c.Hex())
}
