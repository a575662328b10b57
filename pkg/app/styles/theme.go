package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/audiobooks/pkg/download"
)

var (
	// Color palette
	Primary    = lipgloss.Color("#FF6B9D")
	Secondary  = lipgloss.Color("#C792EA")
	Success    = lipgloss.Color("#C3E88D")
	Warning    = lipgloss.Color("#FFCB6B")
	Error      = lipgloss.Color("#F07178")
	Info       = lipgloss.Color("#82AAFF")
	Muted      = lipgloss.Color("#546E7A")
	Background = lipgloss.Color("#263238")
	Foreground = lipgloss.Color("#EEFFFF")

	RoundedBorder = lipgloss.RoundedBorder()
	ThickBorder   = lipgloss.ThickBorder()
)

var TitleStyle = lipgloss.NewStyle().
	Foreground(Primary).
	Bold(true).
	MarginBottom(1)

var SubtitleStyle = lipgloss.NewStyle().
	Foreground(Secondary).
	Italic(true)

var TextStyle = lipgloss.NewStyle().
	Foreground(Foreground)

var MutedStyle = lipgloss.NewStyle().
	Foreground(Muted)

var SelectedStyle = lipgloss.NewStyle().
	Foreground(Primary).
	Bold(true)

var CardStyle = lipgloss.NewStyle().
	Border(RoundedBorder).
	BorderForeground(Secondary).
	Padding(0, 2)

var ActiveCardStyle = lipgloss.NewStyle().
	Border(ThickBorder).
	BorderForeground(Primary).
	Padding(0, 2)

var StatusQueued = lipgloss.NewStyle().
	Foreground(Warning)

var StatusDownloading = lipgloss.NewStyle().
	Foreground(Info).
	Bold(true)

var StatusCompleted = lipgloss.NewStyle().
	Foreground(Success).
	Bold(true)

var StatusError = lipgloss.NewStyle().
	Foreground(Error).
	Bold(true)

var ActiveTabStyle = lipgloss.NewStyle().
	Foreground(Primary).
	Background(lipgloss.Color("#37474F")).
	Padding(0, 2).
	Bold(true)

var InactiveTabStyle = lipgloss.NewStyle().
	Foreground(Muted).
	Padding(0, 2)

var HelpStyle = lipgloss.NewStyle().
	Foreground(Muted).
	Italic(true).
	MarginTop(1)

var InputStyle = lipgloss.NewStyle().
	Border(RoundedBorder).
	BorderForeground(Secondary).
	Padding(0, 1)

var FocusedInputStyle = lipgloss.NewStyle().
	Border(RoundedBorder).
	BorderForeground(Primary).
	Padding(0, 1)

// StateStyle picks the style a download state is rendered with.
func StateStyle(s download.State) lipgloss.Style {
	switch s {
	case download.StateQueued:
		return StatusQueued
	case download.StateDownloading:
		return StatusDownloading
	case download.StateDownloaded:
		return StatusCompleted
	case download.StateError:
		return StatusError
	default:
		return MutedStyle
	}
}

// StateIcon is the one-character marker shown next to a chapter.
func StateIcon(s download.State) string {
	switch s {
	case download.StateQueued:
		return "◌"
	case download.StateDownloading:
		return "◐"
	case download.StateDownloaded:
		return "●"
	case download.StateError:
		return "✗"
	default:
		return "○"
	}
}
