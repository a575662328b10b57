package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
	"github.com/kerbaras/audiobooks/pkg/app/styles"
	"github.com/kerbaras/audiobooks/pkg/download"
)

// ProgressTracker keeps the latest snapshot of each queued chapter and renders
// them as a download list.
type ProgressTracker struct {
	order []string
	items map[string]download.Snapshot
	// gone holds ids of instances that finished or were removed.
	gone  map[string]struct{}
	bar   progress.Model
	width int
}

func NewProgressTracker(width int) *ProgressTracker {
	p := &ProgressTracker{
		items: make(map[string]download.Snapshot),
		gone:  make(map[string]struct{}),
		bar:   progress.New(progress.WithDefaultGradient()),
	}
	p.SetWidth(width)
	return p
}

func (p *ProgressTracker) SetWidth(width int) {
	p.width = width
	p.bar.Width = max(width-4, 10)
}

// Reset replaces the tracked downloads with a queue listing, keeping its
// order.
func (p *ProgressTracker) Reset(queue []download.Snapshot) {
	p.order = p.order[:0]
	p.items = make(map[string]download.Snapshot, len(queue))
	for _, s := range queue {
		p.order = append(p.order, s.Key())
		p.items[s.Key()] = s
	}
}

// Update applies one snapshot. Snapshots older than the tracked one are
// dropped, and finished or removed downloads leave the list for good.
func (p *ProgressTracker) Update(s download.Snapshot) {
	if _, done := p.gone[s.ID]; done {
		return
	}
	key := s.Key()
	cur, ok := p.items[key]
	if ok && cur.ID == s.ID && s.Seq <= cur.Seq {
		return
	}
	if s.Removed || s.State == download.StateDownloaded {
		p.gone[s.ID] = struct{}{}
		if !ok || cur.ID == s.ID {
			p.remove(key)
		}
		return
	}
	if !ok {
		p.order = append(p.order, key)
	}
	p.items[key] = s
}

func (p *ProgressTracker) remove(key string) {
	if _, ok := p.items[key]; !ok {
		return
	}
	delete(p.items, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *ProgressTracker) Len() int {
	return len(p.order)
}

// HasActive reports whether any tracked download is queued or running.
func (p *ProgressTracker) HasActive() bool {
	for _, s := range p.items {
		if s.State.IsActive() {
			return true
		}
	}
	return false
}

// Items returns the tracked snapshots in list order.
func (p *ProgressTracker) Items() []download.Snapshot {
	out := make([]download.Snapshot, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.items[id])
	}
	return out
}

// View renders the list with the row at selected highlighted, -1 for none.
func (p *ProgressTracker) View(selected int) string {
	if len(p.order) == 0 {
		return styles.MutedStyle.Render("No downloads queued")
	}

	var b strings.Builder
	for i, s := range p.Items() {
		title := fmt.Sprintf("%s · %s", s.EntryTitle, s.ChapterName)
		if i == selected {
			b.WriteString(styles.SelectedStyle.Render("> " + title))
		} else {
			b.WriteString(styles.TextStyle.Render("  " + title))
		}
		b.WriteString("\n  ")
		b.WriteString(p.bar.ViewAs(float64(s.Progress) / 100))
		b.WriteString("\n  ")
		b.WriteString(styles.StateStyle(s.State).Render(statusLine(s)))
		b.WriteString("\n\n")
	}
	return b.String()
}

func statusLine(s download.Snapshot) string {
	line := s.State.String()
	if s.BytesWritten > 0 {
		line += " · " + humanize.Bytes(uint64(s.BytesWritten))
	}
	if s.Attempt > 1 {
		line += fmt.Sprintf(" · attempt %d", s.Attempt)
	}
	if s.Err != nil {
		line += " · " + s.Err.Error()
	}
	return line
}
