package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
)

// renderHeader renders the startup logo shown on interactive terminals.
func renderHeader() string {
	logo := figure.NewFigure("NUTRILENS", "standard", true)
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Bold(true).
		Render(logo.String())
}
