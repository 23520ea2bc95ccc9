package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	header    lipgloss.Style
	title     lipgloss.Style
	box       lipgloss.Style
	boxActive lipgloss.Style
	selected  lipgloss.Style
	pending   lipgloss.Style
	muted     lipgloss.Style
	help      lipgloss.Style
	prompt    lipgloss.Style
	alert     lipgloss.Style
	error     lipgloss.Style
}

func newStyles() styles {
	return styles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("240")),
		boxActive: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("10")),
		selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")),
		pending:   lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214")),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		help:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		prompt:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1),
		alert:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		error:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// columnTitle tints a column title with the stage color when one is set.
func (s styles) columnTitle(color string) lipgloss.Style {
	if color == "" {
		return s.title
	}
	return s.title.Foreground(lipgloss.Color(color))
}
