package services

import (
	"context"
	"testing"

	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/download"
	"github.com/kerbaras/audiobooks/pkg/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addPair(t *testing.T, f *fixture) {
	t.Helper()
	_, _, err := f.ctrl.AddEntry(context.Background(), "catalog", "old")
	require.NoError(t, err)
	_, _, err = f.ctrl.AddEntry(context.Background(), "catalog", "new")
	require.NoError(t, err)
}

func TestMigrationFlags(t *testing.T) {
	f := newFixture(t)
	addPair(t, f)

	flags, err := f.ctrl.MigrationFlags("old")
	require.NoError(t, err)
	assert.Equal(t, library.MigrateChapters|library.MigrateCategories, flags)

	f.index["Part 1"] = true
	require.NoError(t, f.repo.SaveEntry(&data.Entry{ID: "old", Title: "OLD", Source: "catalog", CustomCover: "/covers/old.jpg"}))
	flags, err = f.ctrl.MigrationFlags("old")
	require.NoError(t, err)
	assert.True(t, flags.Has(library.MigrateCustomCover))
	assert.True(t, flags.Has(library.MigrateDeleteDownloaded))
}

func TestMigrateChaptersAndCategories(t *testing.T) {
	f := newFixture(t)
	addPair(t, f)
	require.NoError(t, f.repo.UpdateChapterProgress("old-2", true, false, 0))
	require.NoError(t, f.repo.UpdateChapterProgress("old-3", false, true, 17))
	require.NoError(t, f.repo.SetEntryCategories("old", []string{"sci-fi"}))

	err := f.ctrl.Migrate(context.Background(), "old", "new", library.MigrateChapters|library.MigrateCategories, true)
	require.NoError(t, err)

	ch1, _ := f.repo.GetChapter("new-1")
	ch2, _ := f.repo.GetChapter("new-2")
	ch3, _ := f.repo.GetChapter("new-3")
	assert.True(t, ch1.Read, "chapters before the last read one are read")
	assert.True(t, ch2.Read)
	assert.False(t, ch3.Read)
	assert.True(t, ch3.Bookmark)
	assert.Equal(t, 17, ch3.Position)

	categories, _ := f.repo.GetEntryCategories("new")
	assert.Equal(t, []string{"sci-fi"}, categories)

	old, _ := f.repo.GetEntry("old")
	assert.False(t, old.Favorite)
	assert.Contains(t, f.downloads.cancelled, "old")
}

func TestMigrateIgnoresUnavailableFlags(t *testing.T) {
	f := newFixture(t)
	addPair(t, f)

	var deleted bool
	f.downloads.deleteFunc = func(*data.Entry, []*data.Chapter, string) download.DeleteReport {
		deleted = true
		return download.DeleteReport{}
	}

	err := f.ctrl.Migrate(context.Background(), "old", "new", library.MigrateCustomCover|library.MigrateDeleteDownloaded, false)
	require.NoError(t, err)
	assert.Empty(t, f.covers.copied)
	assert.False(t, deleted)

	old, _ := f.repo.GetEntry("old")
	assert.True(t, old.Favorite)
}

func TestMigrateCoverAndDownloads(t *testing.T) {
	f := newFixture(t)
	addPair(t, f)
	require.NoError(t, f.repo.SaveEntry(&data.Entry{ID: "old", Title: "OLD", Source: "catalog", Favorite: true, CustomCover: "/covers/old.jpg"}))
	f.index["Part 1"] = true

	var deletedFor string
	f.downloads.deleteFunc = func(entry *data.Entry, chapters []*data.Chapter, sourceID string) download.DeleteReport {
		deletedFor = entry.ID
		return download.DeleteReport{Removed: chapters}
	}

	flags := library.MigrateCustomCover | library.MigrateDeleteDownloaded
	require.NoError(t, f.ctrl.Migrate(context.Background(), "old", "new", flags, false))

	assert.Equal(t, []string{"/covers/old.jpg"}, f.covers.copied)
	to, _ := f.repo.GetEntry("new")
	assert.Equal(t, "/covers/new.jpg", to.CustomCover)
	assert.Equal(t, "old", deletedFor)
}
