// Package widgets renders small terminal pieces: level meters, spectra and
// key help.
package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-daw/theme"
)

// MeterFloor is the level shown as an empty meter.
const MeterFloor = -60.0

// MeterFraction maps a dB level onto 0-1 between MeterFloor and 0 dB.
func MeterFraction(db float64) float64 {
	if math.IsNaN(db) || db <= MeterFloor {
		return 0
	}
	return min(1, (db-MeterFloor)/-MeterFloor)
}

// RenderMeter draws a labelled horizontal bar for a dB level, width cells
// wide, coloured by how hot it runs.
func RenderMeter(th *theme.Theme, label string, db float64, width int) string {
	frac := MeterFraction(db)
	lit := int(math.Round(frac * float64(width)))

	var bar strings.Builder
	for i := range width {
		cell := float64(i+1) / float64(width)
		if i < lit {
			bar.WriteString(lipgloss.NewStyle().Foreground(th.Level(cell)).Render(string(th.Symbols.BarFull)))
		} else {
			bar.WriteString(lipgloss.NewStyle().Foreground(th.Muted()).Render(string(th.Symbols.BarEmpty)))
		}
	}
	return fmt.Sprintf("%s %s %6.1f dB", label, bar.String(), max(db, MeterFloor))
}

var sparks = []rune(" ▁▂▃▄▅▆▇█")

// RenderSpectrum folds magnitudes into width columns on a log frequency
// axis and draws them as one line of spark characters.
func RenderSpectrum(th *theme.Theme, mags []float64, width int) string {
	if len(mags) < 2 || width <= 0 {
		return ""
	}
	cols := make([]float64, width)
	n := float64(len(mags) - 1)
	for c := range cols {
		lo := int(math.Pow(n, float64(c)/float64(width)))
		hi := max(lo+1, int(math.Pow(n, float64(c+1)/float64(width))))
		for i := lo; i < hi && i < len(mags); i++ {
			cols[c] = max(cols[c], mags[i])
		}
	}

	var out strings.Builder
	for c, m := range cols {
		db := 20 * math.Log10(max(m, 1e-9))
		frac := MeterFraction(db)
		idx := int(math.Round(frac * float64(len(sparks)-1)))
		style := lipgloss.NewStyle().Foreground(th.Color(float64(c) / float64(width)))
		out.WriteString(style.Render(string(sparks[idx])))
	}
	return out.String()
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
