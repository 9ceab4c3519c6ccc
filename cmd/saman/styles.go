package main

import (
	"github.com/charmbracelet/lipgloss"

	"saman/internal/analytics"
)

var (
	primaryColor = lipgloss.Color("#45B7D1")
	successColor = lipgloss.Color("#4ECDC4")
	warningColor = lipgloss.Color("#FFBE0B")
	errorColor   = lipgloss.Color("#FF6B6B")
	subtleColor  = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	subtleStyle  = lipgloss.NewStyle().Foreground(subtleColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(0, 1)
)

func statusStyle(s analytics.Status) lipgloss.Style {
	switch s {
	case analytics.StatusOver:
		return errorStyle
	case analytics.StatusWarning:
		return warningStyle
	default:
		return successStyle
	}
}

// swatch renders a small block in the category colour.
func swatch(color string) string {
	if color == "" {
		color = analytics.UnknownCategoryColor
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("■")
}
