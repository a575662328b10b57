package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/audiobooks/pkg/app/components"
	"github.com/kerbaras/audiobooks/pkg/app/styles"
	"github.com/kerbaras/audiobooks/pkg/services"
)

type LibraryScreen struct {
	ctrl   *services.LibraryController
	list   *components.EntryList
	width  int
	height int
	status string
	err    error
}

func NewLibraryScreen(ctrl *services.LibraryController) *LibraryScreen {
	return &LibraryScreen{
		ctrl: ctrl,
		list: components.NewEntryList(),
	}
}

func (s *LibraryScreen) Init() tea.Cmd {
	return s.loadLibrary
}

func (s *LibraryScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.list.Width = msg.Width - 4
		s.list.Height = msg.Height - 10

	case tea.KeyMsg:
		selected := s.list.Selected()
		switch msg.String() {
		case "up", "k":
			s.list.Prev()
		case "down", "j":
			s.list.Next()
		case "r":
			return s, s.loadLibrary
		case "enter":
			if selected != nil {
				return s, switchTo("details", selected.Entry.ID)
			}
		case "D":
			if selected != nil {
				return s, s.downloadAll(selected.Entry.ID)
			}
		case "e":
			if selected != nil {
				return s, s.export(selected.Entry.ID)
			}
		case "x":
			if selected != nil {
				return s, s.remove(selected.Entry.ID)
			}
		}

	case libraryLoadedMsg:
		s.list.SetItems(msg.items)
		s.err = msg.err

	case statusMsg:
		s.status, s.err = msg.text, msg.err
		return s, s.loadLibrary
	}

	return s, nil
}

func (s *LibraryScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("Audiobook Library")

	var notice string
	if s.err != nil {
		notice = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	} else if s.status != "" {
		notice = styles.StatusCompleted.Render(s.status) + "\n\n"
	}

	help := styles.HelpStyle.Render(
		"↑/k ↓/j: navigate • enter: chapters • D: download all • e: export EPUB • x: remove • r: refresh • tab: switch view • q: quit",
	)

	return fmt.Sprintf("%s\n\n%s%s\n%s", header, notice, s.list.View(), help)
}

type libraryLoadedMsg struct {
	items []services.EntrySummary
	err   error
}

func (s *LibraryScreen) loadLibrary() tea.Msg {
	items, err := s.ctrl.ListEntries()
	return libraryLoadedMsg{items: items, err: err}
}

func (s *LibraryScreen) downloadAll(entryID string) tea.Cmd {
	return func() tea.Msg {
		n, err := s.ctrl.DownloadChapters(entryID, nil)
		return statusMsg{text: fmt.Sprintf("Queued %d chapters", n), err: err}
	}
}

func (s *LibraryScreen) export(entryID string) tea.Cmd {
	return func() tea.Msg {
		path, err := s.ctrl.Export(entryID)
		return statusMsg{text: "Exported to " + path, err: err}
	}
}

func (s *LibraryScreen) remove(entryID string) tea.Cmd {
	return func() tea.Msg {
		err := s.ctrl.RemoveEntry(entryID, false)
		return statusMsg{text: "Removed from library", err: err}
	}
}
