package screens

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/audiobooks/pkg/app/styles"
	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/download"
	"github.com/kerbaras/audiobooks/pkg/library"
	"github.com/kerbaras/audiobooks/pkg/services"
)

const visibleChapters = 12

// DetailsScreen lists the chapters of one entry with their download state.
type DetailsScreen struct {
	ctrl     *services.LibraryController
	entryID  string
	entry    *data.Entry
	chapters []*data.Chapter
	prefs    library.Preferences
	selected int

	// live holds the latest download snapshot per chapter id.
	live map[string]download.Snapshot

	width  int
	height int
	status string
	err    error
}

func NewDetailsScreen(ctrl *services.LibraryController, entryID string) *DetailsScreen {
	return &DetailsScreen{
		ctrl:    ctrl,
		entryID: entryID,
		live:    make(map[string]download.Snapshot),
	}
}

func (s *DetailsScreen) Init() tea.Cmd {
	return s.loadDetails
}

func (s *DetailsScreen) current() *data.Chapter {
	if s.selected < 0 || s.selected >= len(s.chapters) {
		return nil
	}
	return s.chapters[s.selected]
}

func (s *DetailsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height

	case tea.KeyMsg:
		return s, s.handleKey(msg.String())

	case detailsLoadedMsg:
		s.entry = msg.entry
		s.chapters = msg.chapters
		s.err = msg.err
		s.selected = min(s.selected, max(len(s.chapters)-1, 0))

	case snapshotMsg:
		snap := download.Snapshot(msg)
		if snap.EntryID != s.entryID {
			return s, nil
		}
		if cur, ok := s.live[snap.ChapterID]; ok && cur.ID == snap.ID && snap.Seq <= cur.Seq {
			return s, nil
		}
		if snap.Removed {
			delete(s.live, snap.ChapterID)
		} else {
			s.live[snap.ChapterID] = snap
		}

	case statusMsg:
		s.status, s.err = msg.text, msg.err
		return s, s.loadDetails
	}

	return s, nil
}

func (s *DetailsScreen) handleKey(key string) tea.Cmd {
	ch := s.current()
	switch key {
	case "up", "k":
		if s.selected > 0 {
			s.selected--
		}
	case "down", "j":
		if s.selected < len(s.chapters)-1 {
			s.selected++
		}
	case "esc", "backspace":
		return switchTo("library", nil)
	case "r":
		return s.loadDetails
	case "enter", "d":
		if ch != nil {
			return s.run(func() (string, error) {
				n, err := s.ctrl.DownloadChapters(s.entryID, []string{ch.ID})
				return fmt.Sprintf("Queued %d chapter", n), err
			})
		}
	case "D":
		return s.run(func() (string, error) {
			n, err := s.ctrl.DownloadChapters(s.entryID, nil)
			return fmt.Sprintf("Queued %d chapters", n), err
		})
	case "c":
		if ch != nil && s.ctrl.CancelDownload(ch.ID) {
			s.status = "Cancelled " + ch.Name
		}
	case "x":
		if ch != nil {
			return s.run(func() (string, error) {
				_, err := s.ctrl.DeleteDownloads(s.entryID, []string{ch.ID})
				return "Deleted " + ch.Name, err
			})
		}
	case "m":
		if ch != nil {
			return s.run(func() (string, error) {
				return "", s.ctrl.MarkRead(ch.ID, !ch.Read)
			})
		}
	case "n":
		if next := library.NextUnread(s.chapters, s.prefs.Descending); next != nil {
			for i, c := range s.chapters {
				if c.ID == next.ID {
					s.selected = i
				}
			}
		}
	case "u":
		s.prefs.Unread = (s.prefs.Unread + 1) % 3
		return s.loadDetails
	case "f":
		s.prefs.Downloaded = (s.prefs.Downloaded + 1) % 3
		return s.loadDetails
	case "b":
		s.prefs.Bookmarked = (s.prefs.Bookmarked + 1) % 3
		return s.loadDetails
	case "s":
		s.prefs.SortBy = (s.prefs.SortBy + 1) % 4
		return s.loadDetails
	case "o":
		s.prefs.Descending = !s.prefs.Descending
		return s.loadDetails
	case "e":
		return s.run(func() (string, error) {
			path, err := s.ctrl.Export(s.entryID)
			return "Exported to " + path, err
		})
	}
	return nil
}

func (s *DetailsScreen) run(action func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := action()
		return statusMsg{text: text, err: err}
	}
}

func (s *DetailsScreen) chapterState(ch *data.Chapter) download.Snapshot {
	if snap, ok := s.live[ch.ID]; ok {
		return snap
	}
	if s.ctrl.IsDownloaded(s.entry, ch) {
		return download.Snapshot{State: download.StateDownloaded, Progress: 100}
	}
	return download.Snapshot{State: download.StateNotDownloaded}
}

func (s *DetailsScreen) View() string {
	if s.width == 0 || s.entry == nil {
		if s.err != nil {
			return styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err))
		}
		return "Loading..."
	}

	header := styles.TitleStyle.Render(s.entry.Title)

	var notice string
	if s.err != nil {
		notice = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	} else if s.status != "" {
		notice = styles.StatusCompleted.Render(s.status) + "\n\n"
	}

	desc := s.entry.Description
	if len(desc) > 200 {
		desc = desc[:197] + "..."
	}
	info := styles.CardStyle.Width(max(s.width-4, 20)).Render(lipgloss.JoinVertical(
		lipgloss.Left,
		styles.SubtitleStyle.Render(s.entry.Author),
		styles.TextStyle.Render(desc),
		styles.MutedStyle.Render("Source: "+s.entry.Source),
	))

	filters := styles.MutedStyle.Render(fmt.Sprintf(
		"unread: %s • downloaded: %s • bookmarked: %s • sort: %s %s",
		s.prefs.Unread, s.prefs.Downloaded, s.prefs.Bookmarked, s.prefs.SortBy, direction(s.prefs.Descending),
	))

	help := styles.HelpStyle.Render(
		"d: download • D: all • c: cancel • x: delete • m: toggle listened • n: next unread • u/f/b: filters • s/o: sort • e: export • esc: back",
	)

	return fmt.Sprintf("%s\n\n%s%s\n%s\n\n%s\n%s", header, notice, info, filters, s.renderChapters(), help)
}

func direction(desc bool) string {
	if desc {
		return "↓"
	}
	return "↑"
}

func (s *DetailsScreen) renderChapters() string {
	if len(s.chapters) == 0 {
		return styles.MutedStyle.Render("No chapters")
	}

	start := max(s.selected-visibleChapters/2, 0)
	end := min(start+visibleChapters, len(s.chapters))
	start = max(end-visibleChapters, 0)

	var b strings.Builder
	for i := start; i < end; i++ {
		ch := s.chapters[i]
		snap := s.chapterState(ch)

		line := fmt.Sprintf("%s %s", styles.StateIcon(snap.State), ch.Name)
		switch snap.State {
		case download.StateDownloading:
			line += fmt.Sprintf(" %d%%", snap.Progress)
		case download.StateError:
			if snap.Err != nil {
				line += " (" + snap.Err.Error() + ")"
			}
		}
		if ch.Read {
			line += " ✓"
		}
		if ch.Bookmark {
			line += " ★"
		}

		if i == s.selected {
			b.WriteString(styles.SelectedStyle.Render("> " + line))
		} else {
			b.WriteString(styles.StateStyle(snap.State).Render("  " + line))
		}
		b.WriteString("\n")
	}

	if len(s.chapters) > visibleChapters {
		b.WriteString("\n")
		b.WriteString(styles.MutedStyle.Render(
			fmt.Sprintf("Showing %d-%d of %d chapters", start+1, end, len(s.chapters)),
		))
	}
	return b.String()
}

type detailsLoadedMsg struct {
	entry    *data.Entry
	chapters []*data.Chapter
	err      error
}

func (s *DetailsScreen) loadDetails() tea.Msg {
	entry, chapters, err := s.ctrl.Chapters(s.entryID, s.prefs)
	return detailsLoadedMsg{entry: entry, chapters: chapters, err: err}
}
