package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/audiobooks/pkg/app/components"
	"github.com/kerbaras/audiobooks/pkg/app/styles"
	"github.com/kerbaras/audiobooks/pkg/download"
)

// DownloadsScreen shows the download queue with live progress.
type DownloadsScreen struct {
	queue    DownloadQueue
	tracker  *components.ProgressTracker
	selected int
	width    int
	height   int
}

func NewDownloadsScreen(queue DownloadQueue) *DownloadsScreen {
	return &DownloadsScreen{
		queue:   queue,
		tracker: components.NewProgressTracker(80),
	}
}

func (s *DownloadsScreen) Init() tea.Cmd {
	return s.loadQueue
}

// Active returns the number of queued or running downloads.
func (s *DownloadsScreen) Active() int {
	n := 0
	for _, snap := range s.tracker.Items() {
		if snap.State.IsActive() {
			n++
		}
	}
	return n
}

func (s *DownloadsScreen) selectedChapter() string {
	items := s.tracker.Items()
	if s.selected < 0 || s.selected >= len(items) {
		return ""
	}
	return items[s.selected].ChapterID
}

func (s *DownloadsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.tracker.SetWidth(msg.Width - 4)

	case queueLoadedMsg:
		s.tracker.Reset(msg)
		s.clampSelection()

	case snapshotMsg:
		s.tracker.Update(download.Snapshot(msg))
		s.clampSelection()

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if s.selected > 0 {
				s.selected--
			}
		case "down", "j":
			if s.selected < s.tracker.Len()-1 {
				s.selected++
			}
		case "c", "x":
			if id := s.selectedChapter(); id != "" {
				s.queue.Cancel(id)
			}
		case "t":
			if id := s.selectedChapter(); id != "" {
				s.queue.Reorder([]string{id})
				s.selected = 0
				return s, s.loadQueue
			}
		case "r":
			return s, s.loadQueue
		}
	}
	return s, nil
}

func (s *DownloadsScreen) clampSelection() {
	s.selected = min(s.selected, max(s.tracker.Len()-1, 0))
}

func (s *DownloadsScreen) View() string {
	header := styles.TitleStyle.Render(fmt.Sprintf("Downloads (%d)", s.tracker.Len()))
	help := styles.HelpStyle.Render("↑/k ↓/j: navigate • c: cancel • t: move to top • r: refresh • tab: switch view • q: quit")
	return fmt.Sprintf("%s\n\n%s\n%s", header, s.tracker.View(s.selected), help)
}

type queueLoadedMsg []download.Snapshot

func (s *DownloadsScreen) loadQueue() tea.Msg {
	return queueLoadedMsg(s.queue.Queue())
}
