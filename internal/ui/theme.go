package ui

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	// Message styles
	UserMessage        lipgloss.Style
	UserMessageContent lipgloss.Style
	AgentHeader        lipgloss.Style
	AgentMessage       lipgloss.Style
	ToolHeader         lipgloss.Style
	ToolOutput         lipgloss.Style
	SystemMessage      lipgloss.Style
	ErrorMessage       lipgloss.Style
	Timestamp          lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		UserMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // Blue
			Bold(true).
			MarginLeft(2),

		UserMessageContent: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")). // Light gray
			MarginLeft(2),

		AgentHeader: lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")). // Bright magenta
			Bold(true),

		AgentMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("76")), // Green

		ToolHeader: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")). // Bright blue
			Bold(true).
			MarginLeft(2),

		ToolOutput: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			MarginLeft(4),

		SystemMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			Italic(true).
			MarginLeft(2),

		ErrorMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true).
			MarginLeft(2),

		Timestamp: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

// PlainTheme renders without any styling, for non-terminal output.
func PlainTheme() Theme {
	s := lipgloss.NewStyle()
	return Theme{
		UserMessage:        s,
		UserMessageContent: s,
		AgentHeader:        s,
		AgentMessage:       s,
		ToolHeader:         s,
		ToolOutput:         s,
		SystemMessage:      s,
		ErrorMessage:       s,
		Timestamp:          s,
	}
}
