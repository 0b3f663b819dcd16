package view

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	buyColor     = lipgloss.Color("#10B981")
	sellColor    = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	textColor    = lipgloss.Color("#F9FAFB")
	borderColor  = lipgloss.Color("#374151")
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor)

	rowStyle = lipgloss.NewStyle().
			Foreground(textColor)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor)

	upStyle   = lipgloss.NewStyle().Foreground(buyColor)
	downStyle = lipgloss.NewStyle().Foreground(sellColor)
	helpStyle = lipgloss.NewStyle().Foreground(mutedColor)
	errStyle  = lipgloss.NewStyle().Bold(true).Foreground(sellColor)
)
