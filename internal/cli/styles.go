package cli

import "github.com/charmbracelet/lipgloss"

// Terminal styles for human-facing output. Logs go to stderr unstyled.
var (
	violatedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
	idStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
)
