package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/download"
	"github.com/kerbaras/audiobooks/pkg/integrations"
	"github.com/kerbaras/audiobooks/pkg/library"
	"github.com/kerbaras/audiobooks/pkg/sources"
)

// Repository is the part of the library store the controller needs.
type Repository interface {
	SaveEntry(entry *data.Entry) error
	GetEntry(id string) (*data.Entry, error)
	ListEntries() ([]*data.Entry, error)
	DeleteEntry(id string) error
	GetEntryWithChapterCount(entryID string) (*data.Entry, int, int, error)
	SaveChapter(chapter *data.Chapter) error
	GetChapter(id string) (*data.Chapter, error)
	GetChapters(entryID string) ([]*data.Chapter, error)
	UpdateChapterProgress(chapterID string, read, bookmark bool, position int) error
	GetEntryCategories(entryID string) ([]string, error)
	SetEntryCategories(entryID string, categories []string) error
}

// Downloads is the download manager surface driven by the controller.
type Downloads interface {
	Enqueue(entry *data.Entry, chapters []*data.Chapter, sourceID string) (int, error)
	Cancel(chapterID string) bool
	CancelEntry(entryID string) int
	DeleteChapters(entry *data.Entry, chapters []*data.Chapter, sourceID string) download.DeleteReport
}

// DownloadIndex answers downloaded-state queries, normally *download.Cache.
type DownloadIndex interface {
	library.DownloadChecker
	library.DownloadCounter
}

// CoverStore keeps custom covers, normally *integrations.CoverStore.
type CoverStore interface {
	Save(entryID string, r io.Reader) (string, error)
	Copy(fromPath, toEntryID string) (string, error)
	Remove(entryID string) error
}

// ChapterLocator maps chapters to their download directory, normally
// *download.Provider.
type ChapterLocator interface {
	ChapterDir(sourceID, title string, chapter *data.Chapter) string
}

type Exporter interface {
	CreateEPub(entry *data.Entry, chapters []integrations.ExportChapter, coverPath string) (string, error)
}

// ErrNothingToExport is returned when an entry has no downloaded chapter.
var ErrNothingToExport = errors.New("no downloaded chapters to export")

type ControllerConfig struct {
	Repo      Repository
	Sources   sources.Resolver
	Downloads Downloads
	Index     DownloadIndex
	Covers    CoverStore
	Locator   ChapterLocator
	Exporter  Exporter
	Logger    *slog.Logger
}

// LibraryController ties the library store to sources and downloads.
type LibraryController struct {
	repo      Repository
	sources   sources.Resolver
	downloads Downloads
	index     DownloadIndex
	covers    CoverStore
	locator   ChapterLocator
	exporter  Exporter
	logger    *slog.Logger
}

func NewLibraryController(cfg ControllerConfig) *LibraryController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LibraryController{
		repo:      cfg.Repo,
		sources:   cfg.Sources,
		downloads: cfg.Downloads,
		index:     cfg.Index,
		covers:    cfg.Covers,
		locator:   cfg.Locator,
		exporter:  cfg.Exporter,
		logger:    logger,
	}
}

// EntrySummary is an entry with its listening and download counts.
type EntrySummary struct {
	Entry      *data.Entry
	Chapters   int
	Read       int
	Downloaded int
}

func (c *LibraryController) source(id string) (sources.Source, error) {
	src, ok := c.sources.Get(id)
	if !ok || sources.IsStub(src) {
		return nil, fmt.Errorf("%w: %s", download.ErrSourceNotFound, id)
	}
	return src, nil
}

func (c *LibraryController) Search(ctx context.Context, sourceID, query string) ([]data.Entry, error) {
	src, err := c.source(sourceID)
	if err != nil {
		return nil, err
	}
	return src.Search(ctx, query)
}

// AddEntry fetches an entry and its chapters from a source and saves them.
func (c *LibraryController) AddEntry(ctx context.Context, sourceID, entryID string) (*data.Entry, []*data.Chapter, error) {
	src, err := c.source(sourceID)
	if err != nil {
		return nil, nil, err
	}
	entry, err := src.GetEntry(ctx, entryID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get entry: %w", err)
	}
	entry.Source = sourceID
	entry.Favorite = true
	if existing, err := c.repo.GetEntry(entry.ID); err == nil && existing != nil {
		entry.CustomCover = existing.CustomCover
	}
	if err := c.repo.SaveEntry(entry); err != nil {
		return nil, nil, fmt.Errorf("failed to save entry: %w", err)
	}

	chapters, err := c.RefreshChapters(ctx, entry)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info("entry added", "entry", entry.Title, "source", sourceID, "chapters", len(chapters))
	return entry, chapters, nil
}

// RefreshChapters reloads the chapter list from the source, keeping the
// listening state of chapters already in the library.
func (c *LibraryController) RefreshChapters(ctx context.Context, entry *data.Entry) ([]*data.Chapter, error) {
	src, err := c.source(entry.Source)
	if err != nil {
		return nil, err
	}
	fetched, err := src.GetChapters(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to get chapters: %w", err)
	}

	existing, err := c.repo.GetChapters(entry.ID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]*data.Chapter, len(existing))
	for _, ch := range existing {
		known[ch.ID] = ch
	}

	for i, ch := range fetched {
		ch.EntryID = entry.ID
		ch.SourceOrder = i
		if old, ok := known[ch.ID]; ok {
			ch.Read, ch.Bookmark, ch.Position = old.Read, old.Bookmark, old.Position
		}
		if err := c.repo.SaveChapter(ch); err != nil {
			return nil, fmt.Errorf("failed to save chapter %s: %w", ch.Name, err)
		}
	}
	return fetched, nil
}

func (c *LibraryController) Entry(id string) (*data.Entry, error) {
	entry, err := c.repo.GetEntry(id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("entry %s: %w", id, data.ErrNotFound)
	}
	return entry, nil
}

func (c *LibraryController) ListEntries() ([]EntrySummary, error) {
	entries, err := c.repo.ListEntries()
	if err != nil {
		return nil, err
	}
	out := make([]EntrySummary, 0, len(entries))
	for _, e := range entries {
		_, total, read, err := c.repo.GetEntryWithChapterCount(e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, EntrySummary{
			Entry:      e,
			Chapters:   total,
			Read:       read,
			Downloaded: c.index.DownloadCount(e),
		})
	}
	return out, nil
}

// Chapters returns the entry's chapters filtered and sorted by prefs.
func (c *LibraryController) Chapters(entryID string, prefs library.Preferences) (*data.Entry, []*data.Chapter, error) {
	entry, err := c.Entry(entryID)
	if err != nil {
		return nil, nil, err
	}
	chapters, err := c.repo.GetChapters(entryID)
	if err != nil {
		return nil, nil, err
	}
	return entry, library.Chapters(entry, chapters, prefs, c.index), nil
}

// NextUnread returns nil when every listed chapter has been listened to.
func (c *LibraryController) NextUnread(entryID string, prefs library.Preferences) (*data.Chapter, error) {
	_, chapters, err := c.Chapters(entryID, prefs)
	if err != nil {
		return nil, err
	}
	return library.NextUnread(chapters, prefs.Descending), nil
}

func (c *LibraryController) IsDownloaded(entry *data.Entry, chapter *data.Chapter) bool {
	return c.index.IsChapterDownloaded(chapter.Name, chapter.Scanlator, entry.Title, entry.Source)
}

// selectChapters resolves ids to chapters of the entry. No ids selects all.
func (c *LibraryController) selectChapters(entryID string, chapterIDs []string) ([]*data.Chapter, error) {
	chapters, err := c.repo.GetChapters(entryID)
	if err != nil {
		return nil, err
	}
	if len(chapterIDs) == 0 {
		return chapters, nil
	}
	byID := make(map[string]*data.Chapter, len(chapters))
	for _, ch := range chapters {
		byID[ch.ID] = ch
	}
	selected := make([]*data.Chapter, 0, len(chapterIDs))
	for _, id := range chapterIDs {
		ch, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("chapter %s: %w", id, data.ErrNotFound)
		}
		selected = append(selected, ch)
	}
	return selected, nil
}

// DownloadChapters queues chapters of an entry, all of them when chapterIDs is
// empty, and returns how many were queued.
func (c *LibraryController) DownloadChapters(entryID string, chapterIDs []string) (int, error) {
	entry, err := c.Entry(entryID)
	if err != nil {
		return 0, err
	}
	chapters, err := c.selectChapters(entryID, chapterIDs)
	if err != nil {
		return 0, err
	}
	return c.downloads.Enqueue(entry, chapters, entry.Source)
}

func (c *LibraryController) CancelDownload(chapterID string) bool {
	return c.downloads.Cancel(chapterID)
}

// DeleteDownloads removes downloaded chapters, all of them when chapterIDs is
// empty.
func (c *LibraryController) DeleteDownloads(entryID string, chapterIDs []string) (download.DeleteReport, error) {
	entry, err := c.Entry(entryID)
	if err != nil {
		return download.DeleteReport{}, err
	}
	chapters, err := c.selectChapters(entryID, chapterIDs)
	if err != nil {
		return download.DeleteReport{}, err
	}
	report := c.downloads.DeleteChapters(entry, chapters, entry.Source)
	return report, report.Err()
}

func (c *LibraryController) MarkRead(chapterID string, read bool) error {
	ch, err := c.repo.GetChapter(chapterID)
	if err != nil {
		return err
	}
	return c.repo.UpdateChapterProgress(chapterID, read, ch.Bookmark, ch.Position)
}

func (c *LibraryController) SetCustomCover(entryID string, r io.Reader) error {
	entry, err := c.Entry(entryID)
	if err != nil {
		return err
	}
	path, err := c.covers.Save(entryID, r)
	if err != nil {
		return err
	}
	entry.CustomCover = path
	return c.repo.SaveEntry(entry)
}

// RemoveEntry drops an entry from the library after cancelling its downloads.
// Downloaded files are kept unless deleteDownloads is set.
func (c *LibraryController) RemoveEntry(entryID string, deleteDownloads bool) error {
	entry, err := c.Entry(entryID)
	if err != nil {
		return err
	}
	c.downloads.CancelEntry(entryID)

	var errs []error
	if deleteDownloads {
		if _, err := c.DeleteDownloads(entryID, nil); err != nil {
			errs = append(errs, err)
		}
	}
	if entry.HasCustomCover() && c.covers != nil {
		if err := c.covers.Remove(entryID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.repo.DeleteEntry(entryID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Export bundles the downloaded chapters of an entry into an EPUB and returns
// its path.
func (c *LibraryController) Export(entryID string) (string, error) {
	if c.exporter == nil || c.locator == nil {
		return "", errors.New("export is not configured")
	}
	entry, err := c.Entry(entryID)
	if err != nil {
		return "", err
	}
	chapters, err := c.repo.GetChapters(entryID)
	if err != nil {
		return "", err
	}

	var export []integrations.ExportChapter
	for _, ch := range chapters {
		if !c.IsDownloaded(entry, ch) {
			continue
		}
		export = append(export, integrations.ExportChapter{
			Chapter: ch,
			Dir:     c.locator.ChapterDir(entry.Source, entry.Title, ch),
		})
	}
	if len(export) == 0 {
		return "", fmt.Errorf("%s: %w", entry.Title, ErrNothingToExport)
	}

	path, err := c.exporter.CreateEPub(entry, export, entry.CustomCover)
	if err != nil {
		return "", fmt.Errorf("failed to export %s: %w", entry.Title, err)
	}
	c.logger.Info("entry exported", "entry", entry.Title, "chapters", len(export), "path", path)
	return path, nil
}
