package data

import "time"

type Entry struct {
	ID          string
	Title       string
	Author      string
	Description string
	CoverURL    string
	Source      string
	Status      string // "ongoing", "completed", "unknown"
	CustomCover string // Path to a user supplied cover, empty if none
	Favorite    bool
}

// HasCustomCover reports whether the user replaced the source cover.
func (e *Entry) HasCustomCover() bool {
	return e != nil && e.CustomCover != ""
}

type Chapter struct {
	ID          string
	EntryID     string
	Name        string
	Scanlator   string // Narrator or release group
	Number      float64
	SourceOrder int
	UploadDate  time.Time
	URL         string
	Read        bool
	Bookmark    bool
	Position    int // Last listened position in seconds
}
