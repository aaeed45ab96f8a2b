package utils

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	lipgloss.SetColorProfile(termenv.ANSI256)
}

var (
	RedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#cc0000"))
	OrangeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff7c28"))
	YellowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#cc9500"))
	GreenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06cc00"))
	LightBlueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3cc5ff"))
	GrayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#adadad"))
	BoldStyle = lipgloss.NewStyle().Bold(true)

	// TableHeaderStyle is used for the header row when rendering session listings.
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true).PaddingRight(2)
	TableCellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// StatusStyle returns the style used to render a session or statement status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "idle", "available", "success":
		return GreenStyle
	case "busy", "running", "waiting":
		return LightBlueStyle
	case "starting", "not_started", "recovering", "cancelling":
		return YellowStyle
	case "shutting_down", "cancelled":
		return OrangeStyle
	case "error", "dead", "killed":
		return RedStyle
	default:
		return GrayStyle
	}
}
