package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var Catppuccin = struct {
	Base     lipgloss.Color
	Surface0 lipgloss.Color
	Surface1 lipgloss.Color
	Text     lipgloss.Color
	Subtext1 lipgloss.Color
	Overlay0 lipgloss.Color
	Green    lipgloss.Color
	Yellow   lipgloss.Color
	Red      lipgloss.Color
	Blue     lipgloss.Color
	Peach    lipgloss.Color
	Mauve    lipgloss.Color
}{
	Base:     lipgloss.Color("#1e1e2e"),
	Surface0: lipgloss.Color("#313244"),
	Surface1: lipgloss.Color("#45475a"),
	Text:     lipgloss.Color("#cdd6f4"),
	Subtext1: lipgloss.Color("#bac2de"),
	Overlay0: lipgloss.Color("#6c7086"),
	Green:    lipgloss.Color("#a6e3a1"),
	Yellow:   lipgloss.Color("#f9e2af"),
	Red:      lipgloss.Color("#f38ba8"),
	Blue:     lipgloss.Color("#89b4fa"),
	Peach:    lipgloss.Color("#fab387"),
	Mauve:    lipgloss.Color("#cba6f7"),
}

// Accent turns a 0xRRGGBB notification colour into a terminal colour, so the
// dashboard shows each state in the same colour as its chat message.
func Accent(rgb int) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%06X", rgb&0xFFFFFF))
}

// Usage picks green/yellow/red for a 0-100 utilisation figure.
func Usage(percent float64) lipgloss.Color {
	switch {
	case percent > 80:
		return Catppuccin.Red
	case percent > 50:
		return Catppuccin.Yellow
	default:
		return Catppuccin.Green
	}
}
