package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("205")
	colorMuted  = lipgloss.Color("241")
	colorLink   = lipgloss.Color("39")
	colorError  = lipgloss.Color("196")
	colorInfo   = lipgloss.Color("42")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	articleTitleStyle = lipgloss.NewStyle().
				Bold(true)

	articleSummaryStyle = lipgloss.NewStyle()

	articleLinkStyle = lipgloss.NewStyle().
				Foreground(colorLink).
				Underline(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	disabledKeyStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Strikethrough(true)

	errorNoticeStyle = lipgloss.NewStyle().
				Foreground(colorError).
				Bold(true)

	infoNoticeStyle = lipgloss.NewStyle().
			Foreground(colorInfo)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(colorAccent)
)
