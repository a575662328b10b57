package screens

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/audiobooks/pkg/download"
)

// SwitchScreenMsg asks the root screen to show another view.
type SwitchScreenMsg struct {
	Screen string
	Data   any
}

func switchTo(screen string, data any) tea.Cmd {
	return func() tea.Msg {
		return SwitchScreenMsg{Screen: screen, Data: data}
	}
}

// snapshotMsg carries one download update from the manager.
type snapshotMsg download.Snapshot

// statusMsg reports the outcome of a background action.
type statusMsg struct {
	text string
	err  error
}

func waitForSnapshot(sub *download.Subscription) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-sub.Updates()
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}
