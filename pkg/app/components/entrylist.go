package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/audiobooks/pkg/app/styles"
	"github.com/kerbaras/audiobooks/pkg/services"
)

type EntryList struct {
	Items         []services.EntrySummary
	SelectedIndex int
	Width         int
	Height        int
}

func NewEntryList() *EntryList {
	return &EntryList{
		Items:  []services.EntrySummary{},
		Width:  80,
		Height: 20,
	}
}

func (l *EntryList) SetItems(items []services.EntrySummary) {
	l.Items = items
	if l.SelectedIndex >= len(items) && len(items) > 0 {
		l.SelectedIndex = len(items) - 1
	}
	if len(items) == 0 {
		l.SelectedIndex = 0
	}
}

func (l *EntryList) Next() {
	if len(l.Items) == 0 {
		return
	}
	l.SelectedIndex = (l.SelectedIndex + 1) % len(l.Items)
}

func (l *EntryList) Prev() {
	if len(l.Items) == 0 {
		return
	}
	l.SelectedIndex--
	if l.SelectedIndex < 0 {
		l.SelectedIndex = len(l.Items) - 1
	}
}

func (l *EntryList) Selected() *services.EntrySummary {
	if len(l.Items) == 0 || l.SelectedIndex >= len(l.Items) {
		return nil
	}
	return &l.Items[l.SelectedIndex]
}

func (l *EntryList) View() string {
	if len(l.Items) == 0 {
		empty := styles.MutedStyle.Render("No audiobooks in library")
		return lipgloss.Place(l.Width, l.Height, lipgloss.Center, lipgloss.Center, empty)
	}

	cards := make([]string, 0, len(l.Items))
	for i, item := range l.Items {
		card := styles.CardStyle
		if i == l.SelectedIndex {
			card = styles.ActiveCardStyle
		}

		author := item.Entry.Author
		if author == "" {
			author = "Unknown author"
		}
		counts := fmt.Sprintf("%d/%d listened • %d downloaded", item.Read, item.Chapters, item.Downloaded)

		content := lipgloss.JoinVertical(
			lipgloss.Left,
			styles.TitleStyle.UnsetMarginBottom().Render(item.Entry.Title),
			styles.SubtitleStyle.Render(author),
			styles.MutedStyle.Render(counts),
			styles.MutedStyle.Render("Source: "+item.Entry.Source),
		)
		cards = append(cards, card.Width(max(l.Width-4, 20)).Render(content))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}
