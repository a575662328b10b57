package library

import (
	"fmt"
	"strings"

	"github.com/kerbaras/audiobooks/pkg/data"
)

// MigrationFlag selects what a migration carries from one entry to another.
type MigrationFlag uint8

const (
	MigrateChapters MigrationFlag = 1 << iota
	MigrateCategories
	MigrateCustomCover
	MigrateDeleteDownloaded
)

var migrationFlagNames = []struct {
	flag MigrationFlag
	name string
}{
	{MigrateChapters, "chapters"},
	{MigrateCategories, "categories"},
	{MigrateCustomCover, "cover"},
	{MigrateDeleteDownloaded, "delete-downloaded"},
}

func (f MigrationFlag) Has(flag MigrationFlag) bool {
	return f&flag == flag
}

func (f MigrationFlag) String() string {
	var names []string
	for _, n := range migrationFlagNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// ParseMigrationFlags combines flag names as printed by String.
func ParseMigrationFlags(names []string) (MigrationFlag, error) {
	var f MigrationFlag
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		found := false
		for _, n := range migrationFlagNames {
			if n.name == name {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown migration flag %q", raw)
		}
	}
	return f, nil
}

// DownloadCounter is implemented by *download.Cache.
type DownloadCounter interface {
	DownloadCount(entry *data.Entry) int
}

// AvailableMigrationFlags returns the flags that apply to entry. Chapters and
// categories always apply; the cover flag needs a custom cover and the delete
// flag needs at least one downloaded chapter.
func AvailableMigrationFlags(entry *data.Entry, downloads DownloadCounter) MigrationFlag {
	flags := MigrateChapters | MigrateCategories
	if entry.HasCustomCover() {
		flags |= MigrateCustomCover
	}
	if downloads != nil && downloads.DownloadCount(entry) > 0 {
		flags |= MigrateDeleteDownloaded
	}
	return flags
}
