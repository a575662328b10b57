package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/library"
)

// MigrationFlags returns the migration actions applicable to an entry.
func (c *LibraryController) MigrationFlags(entryID string) (library.MigrationFlag, error) {
	entry, err := c.Entry(entryID)
	if err != nil {
		return 0, err
	}
	return library.AvailableMigrationFlags(entry, c.index), nil
}

// Migrate moves library state from one entry to another, typically the same
// title from a different source. Flags that do not apply to the source entry
// are ignored. With replace set the old entry leaves the favorites.
func (c *LibraryController) Migrate(ctx context.Context, fromID, toID string, flags library.MigrationFlag, replace bool) error {
	from, err := c.Entry(fromID)
	if err != nil {
		return err
	}
	to, err := c.Entry(toID)
	if err != nil {
		return err
	}
	flags &= library.AvailableMigrationFlags(from, c.index)
	logger := c.logger.With("from", from.Title, "to", to.Title, "flags", flags.String())

	if flags.Has(library.MigrateChapters) {
		if err := c.migrateChapters(from, to); err != nil {
			return err
		}
	}
	if flags.Has(library.MigrateCategories) {
		categories, err := c.repo.GetEntryCategories(from.ID)
		if err != nil {
			return err
		}
		if err := c.repo.SetEntryCategories(to.ID, categories); err != nil {
			return err
		}
	}
	if flags.Has(library.MigrateCustomCover) && c.covers != nil {
		path, err := c.covers.Copy(from.CustomCover, to.ID)
		if err != nil {
			return fmt.Errorf("failed to copy cover: %w", err)
		}
		to.CustomCover = path
	}

	to.Favorite = true
	if err := c.repo.SaveEntry(to); err != nil {
		return err
	}

	var errs []error
	if flags.Has(library.MigrateDeleteDownloaded) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.DeleteDownloads(from.ID, nil); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete downloads: %w", err))
		}
	}
	if replace {
		c.downloads.CancelEntry(from.ID)
		from.Favorite = false
		if err := c.repo.SaveEntry(from); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("entry migrated")
	return errors.Join(errs...)
}

// migrateChapters copies listening state onto chapters with the same number.
func (c *LibraryController) migrateChapters(from, to *data.Entry) error {
	fromChapters, err := c.repo.GetChapters(from.ID)
	if err != nil {
		return err
	}
	toChapters, err := c.repo.GetChapters(to.ID)
	if err != nil {
		return err
	}

	byNumber := make(map[float64]*data.Chapter, len(fromChapters))
	var maxRead float64 = -1
	for _, ch := range fromChapters {
		byNumber[ch.Number] = ch
		if ch.Read && ch.Number > maxRead {
			maxRead = ch.Number
		}
	}

	for _, ch := range toChapters {
		old, ok := byNumber[ch.Number]
		read := ch.Read || (ok && old.Read) || (ch.Number >= 0 && ch.Number <= maxRead)
		bookmark := ch.Bookmark || (ok && old.Bookmark)
		position := ch.Position
		if ok && position == 0 {
			position = old.Position
		}
		if read == ch.Read && bookmark == ch.Bookmark && position == ch.Position {
			continue
		}
		if err := c.repo.UpdateChapterProgress(ch.ID, read, bookmark, position); err != nil {
			return fmt.Errorf("failed to update chapter %s: %w", ch.Name, err)
		}
	}
	return nil
}
