package dashboard

import "github.com/charmbracelet/lipgloss"

// Palette. Muted, dark-terminal friendly.
var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	blue   = lipgloss.Color("69")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(purple).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	mutedStyle    = lipgloss.NewStyle().Foreground(dim)
	faintStyle    = lipgloss.NewStyle().Foreground(faint)
	degradedBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(red).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(dim)
	searchStyle   = lipgloss.NewStyle().Foreground(yellow)

	runningStyle    = lipgloss.NewStyle().Foreground(green)
	degradedStyle   = lipgloss.NewStyle().Foreground(yellow)
	stoppedStyle    = lipgloss.NewStyle().Foreground(red)
	pausedStyle     = lipgloss.NewStyle().Foreground(blue)
	otherStateStyle = lipgloss.NewStyle().Foreground(dim)
)
