// Package present maps rule severities to the colours and glyphs shown by
// every output surface (terminal, HTML, TUI).
package present

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type encoding struct {
	hex   string
	dark  string
	icon  string
	label string
}

var (
	high    = encoding{hex: "#DC3545", dark: "#FF6B7D", icon: "●", label: "HIGH"}
	medium  = encoding{hex: "#FD7E14", dark: "#FFA94D", icon: "▲", label: "MEDIUM"}
	low     = encoding{hex: "#17A2B8", dark: "#4DD0E1", icon: "◆", label: "LOW"}
	neutral = encoding{hex: "#6C757D", dark: "#ADB5BD", icon: "○", label: "UNKNOWN"}
)

// lookup accepts the severity in any casing; anything unrecognised gets
// the neutral encoding.
func lookup(sev string) encoding {
	switch strings.ToLower(strings.TrimSpace(sev)) {
	case "high":
		return high
	case "medium":
		return medium
	case "low":
		return low
	default:
		return neutral
	}
}

// Color returns the hex colour for sev.
func Color(sev string) string { return lookup(sev).hex }

// Icon returns the glyph for sev.
func Icon(sev string) string { return lookup(sev).icon }

// Label returns the upper-case display label for sev.
func Label(sev string) string { return lookup(sev).label }

// Badge is Icon and Label joined, e.g. "● HIGH".
func Badge(sev string) string {
	e := lookup(sev)
	return e.icon + " " + e.label
}

// Style returns a bold foreground style that adapts to light and dark
// terminals.
func Style(sev string) lipgloss.Style {
	e := lookup(sev)
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: e.hex, Dark: e.dark})
}
