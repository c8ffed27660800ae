package tui

import "github.com/charmbracelet/lipgloss"

var (
	primary   = lipgloss.Color("#7D56F4")
	highlight = lipgloss.Color("#89DDFF")
	errorRed  = lipgloss.Color("#FF5F87")
	faint     = lipgloss.Color("#6C7086")
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorRed).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(faint)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(faint)
	activePane    = paneStyle.BorderForeground(primary)
)

const (
	folderOpen   = "▾"
	folderClosed = "▸"
	fileMark     = "·"
)
