package screens

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/audiobooks/pkg/app/styles"
	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/services"
)

type SearchScreen struct {
	ctrl      *services.LibraryController
	sourceIDs []string
	source    int
	input     textinput.Model
	results   []data.Entry
	selected  int
	searching bool
	width     int
	height    int
	err       error
}

func NewSearchScreen(ctrl *services.LibraryController, sourceIDs []string) *SearchScreen {
	ti := textinput.New()
	ti.Placeholder = "Search audiobooks..."
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 50

	return &SearchScreen{
		ctrl:      ctrl,
		sourceIDs: sourceIDs,
		input:     ti,
	}
}

// Typing reports whether keys go to the query input.
func (s *SearchScreen) Typing() bool {
	return s.input.Focused()
}

func (s *SearchScreen) sourceID() string {
	if len(s.sourceIDs) == 0 {
		return ""
	}
	return s.sourceIDs[s.source]
}

func (s *SearchScreen) Init() tea.Cmd {
	return textinput.Blink
}

func (s *SearchScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		if s.searching {
			return s, nil
		}

		switch msg.String() {
		case "enter":
			if s.input.Focused() {
				if query := strings.TrimSpace(s.input.Value()); query != "" {
					s.searching = true
					return s, s.performSearch(s.sourceID(), query)
				}
			} else if len(s.results) > 0 {
				return s, s.addEntry(s.sourceID(), s.results[s.selected].ID)
			}

		case "ctrl+n":
			if len(s.sourceIDs) > 0 {
				s.source = (s.source + 1) % len(s.sourceIDs)
				s.results = nil
			}
			return s, nil

		case "esc":
			if s.input.Focused() {
				s.input.Blur()
			} else {
				s.input.Focus()
				cmd = textinput.Blink
			}
			return s, cmd

		case "up", "k":
			if !s.input.Focused() && len(s.results) > 0 {
				s.selected = (s.selected - 1 + len(s.results)) % len(s.results)
			}

		case "down", "j":
			if !s.input.Focused() && len(s.results) > 0 {
				s.selected = (s.selected + 1) % len(s.results)
			}
		}

	case searchResultMsg:
		s.searching = false
		s.results = msg.results
		s.selected = 0
		s.err = msg.err
		if len(s.results) > 0 {
			s.input.Blur()
		}

	case entryAddedMsg:
		s.err = msg.err
		if msg.err == nil {
			return s, switchTo("details", msg.entryID)
		}
	}

	if s.input.Focused() {
		s.input, cmd = s.input.Update(msg)
	}
	return s, cmd
}

func (s *SearchScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	source := s.sourceID()
	if source == "" {
		source = "no sources configured"
	}
	header := styles.TitleStyle.Render("Search") + "  " + styles.MutedStyle.Render("source: "+source)

	inputStyle := styles.InputStyle
	if s.input.Focused() {
		inputStyle = styles.FocusedInputStyle
	}

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	}

	var results string
	switch {
	case s.searching:
		results = styles.StatusDownloading.Render("Searching...")
	case len(s.results) > 0:
		results = s.renderResults()
	case s.input.Value() != "":
		results = styles.MutedStyle.Render("No results found")
	}

	help := styles.HelpStyle.Render(
		"enter: search/add • esc: switch focus • ctrl+n: next source • ↑/k ↓/j: navigate • tab: switch view",
	)

	return fmt.Sprintf("%s\n\n%s\n\n%s%s\n\n%s", header, inputStyle.Render(s.input.View()), errorMsg, results, help)
}

func (s *SearchScreen) renderResults() string {
	cards := []string{styles.SubtitleStyle.Render(fmt.Sprintf("Found %d results:", len(s.results)))}
	for i, entry := range s.results {
		card := styles.CardStyle
		if i == s.selected && !s.input.Focused() {
			card = styles.ActiveCardStyle
		}

		desc := entry.Description
		if len(desc) > 120 {
			desc = desc[:117] + "..."
		}

		content := lipgloss.JoinVertical(
			lipgloss.Left,
			styles.TitleStyle.UnsetMarginBottom().Render(entry.Title),
			styles.SubtitleStyle.Render(entry.Author),
			styles.TextStyle.Render(desc),
		)
		cards = append(cards, card.Width(max(s.width-6, 20)).Render(content))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

type searchResultMsg struct {
	results []data.Entry
	err     error
}

type entryAddedMsg struct {
	entryID string
	err     error
}

func (s *SearchScreen) performSearch(sourceID, query string) tea.Cmd {
	return func() tea.Msg {
		results, err := s.ctrl.Search(context.Background(), sourceID, query)
		return searchResultMsg{results: results, err: err}
	}
}

func (s *SearchScreen) addEntry(sourceID, entryID string) tea.Cmd {
	return func() tea.Msg {
		entry, _, err := s.ctrl.AddEntry(context.Background(), sourceID, entryID)
		if err != nil {
			return entryAddedMsg{err: err}
		}
		return entryAddedMsg{entryID: entry.ID}
	}
}
