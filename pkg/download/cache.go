package download

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kerbaras/audiobooks/pkg/data"
	"golang.org/x/sync/errgroup"
)

// DefaultRenewInterval bounds how stale the cache may get before a query
// triggers a background rebuild.
const DefaultRenewInterval = 30 * time.Second

type CacheOptions struct {
	RenewInterval time.Duration
	ScanWorkers   int
	Logger        *slog.Logger
}

// index maps source dir -> entry dir -> set of chapter dirs.
type index map[string]map[string]map[string]struct{}

func (idx index) add(source, entry, chapter string) {
	entries, ok := idx[source]
	if !ok {
		entries = make(map[string]map[string]struct{})
		idx[source] = entries
	}
	chapters, ok := entries[entry]
	if !ok {
		chapters = make(map[string]struct{})
		entries[entry] = chapters
	}
	chapters[chapter] = struct{}{}
}

func (idx index) remove(source, entry, chapter string) {
	chapters := idx[source][entry]
	if chapters == nil {
		return
	}
	delete(chapters, chapter)
	if len(chapters) == 0 {
		delete(idx[source], entry)
	}
}

type cacheOp struct {
	add                    bool
	source, entry, chapter string
}

func (op cacheOp) apply(idx index) {
	if op.add {
		idx.add(op.source, op.entry, op.chapter)
	} else {
		idx.remove(op.source, op.entry, op.chapter)
	}
}

// Cache answers "is this chapter downloaded" from an in-memory index of the
// downloads directory instead of touching storage on each query.
type Cache struct {
	provider      *Provider
	logger        *slog.Logger
	renewInterval time.Duration
	scanWorkers   int

	mu         sync.RWMutex
	idx        index
	loaded     bool
	lastRenew  time.Time
	rebuilding bool
	journal    []cacheOp

	rebuildMu sync.Mutex
	renewing  atomic.Bool
}

func NewCache(provider *Provider, opts CacheOptions) *Cache {
	if opts.RenewInterval <= 0 {
		opts.RenewInterval = DefaultRenewInterval
	}
	if opts.ScanWorkers <= 0 {
		opts.ScanWorkers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		provider:      provider,
		logger:        opts.Logger,
		renewInterval: opts.RenewInterval,
		scanWorkers:   opts.ScanWorkers,
		idx:           make(index),
	}
}

func (c *Cache) IsChapterDownloaded(chapterName, scanlator, entryTitle, sourceID string) bool {
	c.renewIfStale()

	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.idx[SourceDirName(sourceID)][EntryDirName(entryTitle)][ChapterDirName(chapterName, scanlator)]
	return ok
}

func (c *Cache) DownloadCount(entry *data.Entry) int {
	c.renewIfStale()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.idx[SourceDirName(entry.Source)][EntryDirName(entry.Title)])
}

// TotalCount returns the number of downloaded chapters across all entries.
func (c *Cache) TotalCount() int {
	c.renewIfStale()

	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, entries := range c.idx {
		for _, chapters := range entries {
			total += len(chapters)
		}
	}
	return total
}

// Add records a committed chapter. It is applied before the caller publishes
// the downloaded state, so a query after that state always sees it.
func (c *Cache) Add(sourceID string, entry *data.Entry, chapter *data.Chapter) {
	c.mutate(cacheOp{
		add:     true,
		source:  SourceDirName(sourceID),
		entry:   EntryDirName(entry.Title),
		chapter: ChapterDirName(chapter.Name, chapter.Scanlator),
	})
}

func (c *Cache) Remove(sourceID string, entry *data.Entry, chapter *data.Chapter) {
	c.mutate(cacheOp{
		source:  SourceDirName(sourceID),
		entry:   EntryDirName(entry.Title),
		chapter: ChapterDirName(chapter.Name, chapter.Scanlator),
	})
}

func (c *Cache) mutate(op cacheOp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op.apply(c.idx)
	if c.rebuilding {
		c.journal = append(c.journal, op)
	}
}

// Rebuild rescans the downloads root and swaps in the new index. Mutations
// made while the scan runs are replayed on top of the scanned index.
func (c *Cache) Rebuild(ctx context.Context) error {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	c.mu.Lock()
	root := c.provider.Root()
	c.rebuilding = true
	c.journal = nil
	c.mu.Unlock()

	started := time.Now()
	scanned, err := c.scan(ctx, root)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuilding = false
	journal := c.journal
	c.journal = nil
	if err != nil {
		return err
	}
	for _, op := range journal {
		op.apply(scanned)
	}
	c.idx = scanned
	c.loaded = true
	c.lastRenew = time.Now()

	c.logger.Debug("download cache rebuilt",
		"root", root,
		"replayed", len(journal),
		"duration", time.Since(started))
	return nil
}

// Invalidate forces the next query to trigger a rebuild.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.lastRenew = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) renewIfStale() {
	c.mu.RLock()
	stale := !c.loaded || time.Since(c.lastRenew) > c.renewInterval
	c.mu.RUnlock()

	if !stale || !c.renewing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.renewing.Store(false)
		if err := c.Rebuild(context.Background()); err != nil {
			c.logger.Warn("download cache rebuild failed", "error", err)
		}
	}()
}

func (c *Cache) scan(ctx context.Context, root string) (index, error) {
	idx := make(index)
	sourceDirs, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]map[string]map[string]struct{}, len(sourceDirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.scanWorkers)
	for i, sd := range sourceDirs {
		if !sd.IsDir() || IsTempName(sd.Name()) {
			continue
		}
		g.Go(func() error {
			entries, err := scanSource(ctx, filepath.Join(root, sd.Name()))
			results[i] = entries
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, sd := range sourceDirs {
		if len(results[i]) > 0 {
			idx[sd.Name()] = results[i]
		}
	}
	return idx, nil
}

func scanSource(ctx context.Context, dir string) (map[string]map[string]struct{}, error) {
	entryDirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]map[string]struct{})
	for _, ed := range entryDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ed.IsDir() || IsTempName(ed.Name()) {
			continue
		}
		chapterDirs, err := os.ReadDir(filepath.Join(dir, ed.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		chapters := make(map[string]struct{})
		for _, cd := range chapterDirs {
			if cd.IsDir() && !IsTempName(cd.Name()) {
				chapters[cd.Name()] = struct{}{}
			}
		}
		if len(chapters) > 0 {
			entries[ed.Name()] = chapters
		}
	}
	return entries, nil
}
