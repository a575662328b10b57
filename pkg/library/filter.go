package library

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kerbaras/audiobooks/pkg/data"
)

// TriState filters chapters on one boolean attribute.
type TriState int

const (
	// Disabled ignores the attribute.
	Disabled TriState = iota
	// EnabledIs keeps chapters where the attribute is true.
	EnabledIs
	// EnabledNot keeps chapters where the attribute is false.
	EnabledNot
)

func (t TriState) Matches(v bool) bool {
	switch t {
	case EnabledIs:
		return v
	case EnabledNot:
		return !v
	default:
		return true
	}
}

func (t TriState) String() string {
	switch t {
	case EnabledIs:
		return "is"
	case EnabledNot:
		return "not"
	default:
		return "off"
	}
}

// ParseTriState accepts "is", "not", "off" or an empty string.
func ParseTriState(s string) (TriState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "disabled":
		return Disabled, nil
	case "is", "yes", "only":
		return EnabledIs, nil
	case "not", "no", "exclude":
		return EnabledNot, nil
	default:
		return Disabled, fmt.Errorf("invalid filter value %q (want is, not or off)", s)
	}
}

type SortKey int

const (
	BySourceOrder SortKey = iota
	ByNumber
	ByUploadDate
	ByName
)

func (k SortKey) String() string {
	switch k {
	case ByNumber:
		return "number"
	case ByUploadDate:
		return "date"
	case ByName:
		return "name"
	default:
		return "source"
	}
}

func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "source":
		return BySourceOrder, nil
	case "number":
		return ByNumber, nil
	case "date", "upload":
		return ByUploadDate, nil
	case "name":
		return ByName, nil
	default:
		return BySourceOrder, fmt.Errorf("invalid sort key %q", s)
	}
}

// Preferences are the per-entry chapter list settings.
type Preferences struct {
	Unread     TriState
	Downloaded TriState
	Bookmarked TriState
	SortBy     SortKey
	Descending bool
}

// DownloadChecker answers whether a chapter is downloaded. *download.Cache
// implements it.
type DownloadChecker interface {
	IsChapterDownloaded(chapterName, scanlator, entryTitle, sourceID string) bool
}

// FilterChapters returns the chapters matching prefs in their input order.
// downloads may be nil when the downloaded filter is disabled.
func FilterChapters(entry *data.Entry, chapters []*data.Chapter, prefs Preferences, downloads DownloadChecker) []*data.Chapter {
	out := make([]*data.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if !prefs.Unread.Matches(!ch.Read) {
			continue
		}
		if !prefs.Bookmarked.Matches(ch.Bookmark) {
			continue
		}
		if prefs.Downloaded != Disabled {
			downloaded := downloads != nil &&
				downloads.IsChapterDownloaded(ch.Name, ch.Scanlator, entry.Title, entry.Source)
			if !prefs.Downloaded.Matches(downloaded) {
				continue
			}
		}
		out = append(out, ch)
	}
	return out
}

// SortChapters sorts in place. Equal keys keep their input order in both
// directions.
func SortChapters(chapters []*data.Chapter, key SortKey, descending bool) {
	less := lessFunc(key)
	sort.SliceStable(chapters, func(i, j int) bool {
		if descending {
			return less(chapters[j], chapters[i])
		}
		return less(chapters[i], chapters[j])
	})
}

func lessFunc(key SortKey) func(a, b *data.Chapter) bool {
	switch key {
	case ByNumber:
		return func(a, b *data.Chapter) bool { return a.Number < b.Number }
	case ByUploadDate:
		return func(a, b *data.Chapter) bool { return a.UploadDate.Before(b.UploadDate) }
	case ByName:
		return func(a, b *data.Chapter) bool {
			la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if la != lb {
				return la < lb
			}
			return a.Name < b.Name
		}
	default:
		return func(a, b *data.Chapter) bool { return a.SourceOrder < b.SourceOrder }
	}
}

// Chapters filters then sorts a copy of chapters.
func Chapters(entry *data.Entry, chapters []*data.Chapter, prefs Preferences, downloads DownloadChecker) []*data.Chapter {
	out := FilterChapters(entry, chapters, prefs, downloads)
	SortChapters(out, prefs.SortBy, prefs.Descending)
	return out
}

// NextUnread picks the chapter to play next from a sorted list: the first
// unread one, or the last when the list is sorted descending. It returns nil
// when everything is read.
func NextUnread(sorted []*data.Chapter, descending bool) *data.Chapter {
	if descending {
		for i := len(sorted) - 1; i >= 0; i-- {
			if !sorted[i].Read {
				return sorted[i]
			}
		}
		return nil
	}
	for _, ch := range sorted {
		if !ch.Read {
			return ch
		}
	}
	return nil
}
