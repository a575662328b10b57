package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/audiobooks/pkg/app/styles"
	"github.com/kerbaras/audiobooks/pkg/download"
	"github.com/kerbaras/audiobooks/pkg/services"
)

// DownloadQueue is the download manager as seen by the screens.
type DownloadQueue interface {
	Subscribe() *download.Subscription
	Queue() []download.Snapshot
	Cancel(chapterID string) bool
	Reorder(chapterIDs []string)
}

type screenType int

const (
	libraryView screenType = iota
	searchView
	downloadsView
	detailsView
)

var tabNames = []string{"Library", "Search", "Downloads"}

type RootScreen struct {
	ctrl  *services.LibraryController
	queue DownloadQueue
	sub   *download.Subscription

	currentView screenType
	library     *LibraryScreen
	search      *SearchScreen
	downloads   *DownloadsScreen
	details     *DetailsScreen

	width  int
	height int
}

func NewRootScreen(ctrl *services.LibraryController, queue DownloadQueue, sourceIDs []string) *RootScreen {
	return &RootScreen{
		ctrl:        ctrl,
		queue:       queue,
		sub:         queue.Subscribe(),
		currentView: libraryView,
		library:     NewLibraryScreen(ctrl),
		search:      NewSearchScreen(ctrl, sourceIDs),
		downloads:   NewDownloadsScreen(queue),
	}
}

// Close releases the download subscription.
func (r *RootScreen) Close() {
	r.sub.Close()
}

func (r *RootScreen) Init() tea.Cmd {
	return tea.Batch(r.library.Init(), r.downloads.Init(), waitForSnapshot(r.sub))
}

func (r *RootScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		r.library.Update(msg)
		r.search.Update(msg)
		r.downloads.Update(msg)
		if r.details != nil {
			r.details.Update(msg)
		}
		return r, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return r, tea.Quit
		case "q":
			if !r.search.Typing() || r.currentView != searchView {
				return r, tea.Quit
			}
		case "tab":
			if r.currentView == detailsView {
				break
			}
			r.currentView = (r.currentView + 1) % screenType(len(tabNames))
			return r, r.initCurrent()
		}

	case snapshotMsg:
		r.downloads.Update(msg)
		if r.details != nil {
			r.details.Update(msg)
		}
		if download.Snapshot(msg).State == download.StateDownloaded {
			cmd = r.library.Init()
		}
		return r, tea.Batch(cmd, waitForSnapshot(r.sub))

	case SwitchScreenMsg:
		switch msg.Screen {
		case "library":
			r.currentView = libraryView
		case "downloads":
			r.currentView = downloadsView
		case "details":
			if entryID, ok := msg.Data.(string); ok {
				r.details = NewDetailsScreen(r.ctrl, entryID)
				r.details.Update(tea.WindowSizeMsg{Width: r.width, Height: r.height})
				r.currentView = detailsView
			}
		}
		return r, r.initCurrent()
	}

	switch r.currentView {
	case libraryView:
		_, cmd = r.library.Update(msg)
	case searchView:
		_, cmd = r.search.Update(msg)
	case downloadsView:
		_, cmd = r.downloads.Update(msg)
	case detailsView:
		if r.details != nil {
			_, cmd = r.details.Update(msg)
		}
	}
	return r, cmd
}

func (r *RootScreen) initCurrent() tea.Cmd {
	switch r.currentView {
	case libraryView:
		return r.library.Init()
	case searchView:
		return r.search.Init()
	case downloadsView:
		return r.downloads.Init()
	case detailsView:
		if r.details != nil {
			return r.details.Init()
		}
	}
	return nil
}

func (r *RootScreen) View() string {
	var content string
	switch r.currentView {
	case libraryView:
		content = r.library.View()
	case searchView:
		content = r.search.View()
	case downloadsView:
		content = r.downloads.View()
	case detailsView:
		if r.details != nil {
			content = r.details.View()
		}
	}
	if r.currentView == detailsView {
		return content
	}
	return fmt.Sprintf("%s\n\n%s", r.renderTabs(), content)
}

func (r *RootScreen) renderTabs() string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if screenType(i) == r.currentView {
			tabs[i] = styles.ActiveTabStyle.Render(name)
		} else {
			tabs[i] = styles.InactiveTabStyle.Render(name)
		}
	}
	if n := r.downloads.Active(); n > 0 {
		tabs[downloadsView] = tabs[downloadsView] + styles.StatusDownloading.Render(fmt.Sprintf(" %d", n))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}
