package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/sources"
)

var (
	// ErrSourceNotFound rejects downloads whose source is missing or a stub.
	ErrSourceNotFound = errors.New("source not found")
	// ErrLocked is returned by Start when another process owns the downloads root.
	ErrLocked = errors.New("downloads directory is in use by another process")
	// ErrIncomplete means a fetch ended before all expected bytes were written.
	ErrIncomplete = errors.New("download incomplete")
	// ErrNotRunning is returned when stopping a manager that was never started.
	ErrNotRunning = errors.New("download manager not running")
)

const lockFileName = ".lock"

type Options struct {
	Workers         int
	SegmentWorkers  int
	ProgressWindow  time.Duration
	RequestInterval time.Duration
	Retry           RetryPolicy
	Logger          *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.SegmentWorkers <= 0 {
		o.SegmentWorkers = 2
	}
	if o.ProgressWindow == 0 {
		o.ProgressWindow = DefaultProgressWindow
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

type activeDownload struct {
	d      *Download
	cancel context.CancelFunc
	// done is closed once the worker let go of the download.
	done   chan struct{}
}

// Manager owns the download queue. It runs up to Workers chapters at once and
// never runs two downloads of the same chapter at the same time. A chapter is
// identified by its source and chapter id.
type Manager struct {
	opts       Options
	resolver   sources.Resolver
	provider   *Provider
	cache      *Cache
	hub        *Hub
	aggregator *Aggregator
	logger     *slog.Logger

	mu     sync.Mutex
	queue  []*Download
	byKey  map[string]*Download
	active map[string]activeDownload
	wake   chan struct{}

	runMu       sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lock        *flock.Flock
	rateLimiter *time.Ticker
}

func NewManager(resolver sources.Resolver, provider *Provider, cache *Cache, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		opts:       opts,
		resolver:   resolver,
		provider:   provider,
		cache:      cache,
		hub:        NewHub(),
		aggregator: NewAggregator(opts.ProgressWindow),
		logger:     opts.Logger,
		byKey:      make(map[string]*Download),
		active:     make(map[string]activeDownload),
		wake:       make(chan struct{}, 1),
	}
}

// Start takes the downloads root lock and launches the workers. Downloads
// enqueued before Start wait until it is called.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return nil
	}

	root := m.provider.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}
	lock := flock.New(filepath.Join(root, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	m.lock = lock

	if m.opts.RequestInterval > 0 {
		m.rateLimiter = time.NewTicker(m.opts.RequestInterval)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for range m.opts.Workers {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	m.signal()

	m.logger.Info("download manager started", "root", root, "workers", m.opts.Workers)
	return nil
}

// Stop cancels in-flight downloads, waits for the workers and releases the
// root lock. Interrupted downloads keep their partial files for resuming.
func (m *Manager) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return ErrNotRunning
	}

	m.cancel()
	m.wg.Wait()
	m.running = false
	if m.rateLimiter != nil {
		m.rateLimiter.Stop()
		m.rateLimiter = nil
	}
	err := m.lock.Unlock()
	m.logger.Info("download manager stopped")
	return err
}

// Subscribe streams snapshots of every download.
func (m *Manager) Subscribe() *Subscription {
	return m.hub.Subscribe(nil)
}

// SubscribeChapter streams snapshots of one chapter's downloads.
func (m *Manager) SubscribeChapter(chapterID string) *Subscription {
	return m.hub.Subscribe(func(s Snapshot) bool { return s.ChapterID == chapterID })
}

// Enqueue queues chapters of entry for download from sourceID and returns how
// many were added. Chapters already queued or downloaded are skipped; failed
// ones are queued again. It does not block on I/O.
func (m *Manager) Enqueue(entry *data.Entry, chapters []*data.Chapter, sourceID string) (int, error) {
	if entry == nil {
		return 0, fmt.Errorf("entry cannot be nil")
	}
	src, ok := m.resolver.Get(sourceID)
	if !ok || sources.IsStub(src) {
		return 0, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, ch := range chapters {
		if ch == nil {
			continue
		}
		key := Key(sourceID, ch.ID)
		if existing, ok := m.byKey[key]; ok {
			if existing.State() == StateError && existing.transition(StateQueued, nil) == nil {
				added++
			}
			continue
		}
		if m.cache.IsChapterDownloaded(ch.Name, ch.Scanlator, entry.Title, sourceID) {
			continue
		}

		d := newDownload(*entry, *ch, sourceID, m.hub.Publish)
		if err := d.transition(StateQueued, nil); err != nil {
			return added, err
		}
		m.queue = append(m.queue, d)
		m.byKey[key] = d
		added++
	}

	if added > 0 {
		m.logger.Info("chapters queued", "entry", entry.Title, "count", added)
		m.signal()
	}
	return added, nil
}

// Cancel removes a chapter from the queue, interrupting it if it is running.
// It reports whether any download was cancelled.
func (m *Manager) Cancel(chapterID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelMatchingLocked(func(d *Download) bool { return d.Chapter.ID == chapterID }) > 0
}

// CancelEntry removes every queued chapter of an entry.
func (m *Manager) CancelEntry(entryID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelMatchingLocked(func(d *Download) bool { return d.Entry.ID == entryID })
}

func (m *Manager) cancelMatchingLocked(match func(*Download) bool) int {
	var matched []*Download
	for _, d := range m.queue {
		if match(d) {
			matched = append(matched, d)
		}
	}
	for _, d := range matched {
		m.cancelLocked(d)
	}
	return len(matched)
}

func (m *Manager) cancelLocked(d *Download) {
	m.removeLocked(d)
	if a, ok := m.active[d.key()]; ok && a.d == d {
		a.cancel()
	}
	d.markRemoved()
	m.logger.Info("download cancelled", "chapter", d.Chapter.Name, "download_id", d.ID)
}

func (m *Manager) removeLocked(d *Download) {
	if m.byKey[d.key()] == d {
		delete(m.byKey, d.key())
	}
	for i, q := range m.queue {
		if q == d {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}

// Reorder moves the given chapters to the front of the queue in the given
// order. Other downloads keep their relative order.
func (m *Manager) Reorder(chapterIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	front := make([]*Download, 0, len(chapterIDs))
	moved := make(map[*Download]struct{}, len(chapterIDs))
	for _, id := range chapterIDs {
		for _, d := range m.queue {
			if _, dup := moved[d]; !dup && d.Chapter.ID == id {
				front = append(front, d)
				moved[d] = struct{}{}
			}
		}
	}
	queue := front
	for _, d := range m.queue {
		if _, ok := moved[d]; !ok {
			queue = append(queue, d)
		}
	}
	m.queue = queue
}

// Queue returns snapshots of the queued, running and failed downloads in
// queue order.
func (m *Manager) Queue() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.queue))
	for i, d := range m.queue {
		out[i] = d.Snapshot()
	}
	return out
}

// Pending returns the number of downloads that are queued or running.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.queue {
		if d.State().IsActive() {
			n++
		}
	}
	return n
}

// DeleteReport lists which chapters had their artifacts removed. Chapters
// with nothing on disk are Skipped.
type DeleteReport struct {
	Removed []*data.Chapter
	Skipped []*data.Chapter
	Failed  []DeleteResult
}

// Err joins the per-chapter failures, nil when every chapter was removed.
func (r DeleteReport) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("chapter %s: %w", f.Chapter.Name, f.Err))
	}
	return errors.Join(errs...)
}

// DeleteChapters cancels any download of the chapters, waits for their
// workers to stop, removes their artifacts and updates the cache for every
// chapter actually removed before returning.
func (m *Manager) DeleteChapters(entry *data.Entry, chapters []*data.Chapter, sourceID string) DeleteReport {
	var running []chan struct{}
	m.mu.Lock()
	for _, ch := range chapters {
		key := Key(sourceID, ch.ID)
		if d, ok := m.byKey[key]; ok {
			m.cancelLocked(d)
		}
		// A cancelled worker can still be committing; it must not record
		// the artifact after it is deleted.
		if a, ok := m.active[key]; ok {
			running = append(running, a.done)
		}
	}
	m.mu.Unlock()
	for _, done := range running {
		<-done
	}

	var report DeleteReport
	for _, r := range m.provider.DeleteChapters(sourceID, entry, chapters) {
		switch {
		case r.Err != nil:
			m.logger.Warn("failed to delete chapter", "chapter", r.Chapter.Name, "error", r.Err)
			report.Failed = append(report.Failed, r)
			continue
		case r.Skipped:
			report.Skipped = append(report.Skipped, r.Chapter)
		default:
			report.Removed = append(report.Removed, r.Chapter)
		}
		m.cache.Remove(sourceID, entry, r.Chapter)
	}
	return report
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		d, dctx, done := m.next(ctx)
		if d == nil {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		m.run(dctx, d)
		done()
	}
}

// next picks the first queued download whose chapter is not running and moves
// it to downloading. The check and the move happen under m.mu.
func (m *Manager) next(ctx context.Context) (*Download, context.Context, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return nil, nil, nil
	}

	for _, d := range m.queue {
		if d.State() != StateQueued {
			continue
		}
		key := d.key()
		if _, busy := m.active[key]; busy {
			continue
		}
		if err := d.transition(StateDownloading, nil); err != nil {
			continue
		}

		dctx, cancel := context.WithCancel(ctx)
		released := make(chan struct{})
		m.active[key] = activeDownload{d: d, cancel: cancel, done: released}
		m.signal()
		return d, dctx, func() {
			cancel()
			m.mu.Lock()
			delete(m.active, key)
			m.mu.Unlock()
			close(released)
			m.signal()
		}
	}
	return nil, nil, nil
}

func (m *Manager) isQueued(d *Download) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[d.key()] == d
}

// run drives one download from downloading to downloaded or error. Errors
// never escape: they become the error state of the download.
func (m *Manager) run(ctx context.Context, d *Download) {
	logger := m.logger.With("entry", d.Entry.Title, "chapter", d.Chapter.Name, "download_id", d.ID)
	provider := m.provider
	tmpDir := provider.TempChapterDir(d.Source, d.Entry.Title, &d.Chapter)

	err := m.fetchWithRetry(ctx, d, logger)
	if ctx.Err() != nil && err != nil {
		if m.isQueued(d) {
			// Shutdown, not a cancel: keep partial files so a re-enqueue resumes.
			d.transition(StateError, fmt.Errorf("interrupted: %w", ctx.Err()))
		} else if derr := provider.Discard(tmpDir); derr != nil {
			logger.Warn("failed to discard partial download", "error", derr)
		}
		logger.Info("download interrupted")
		return
	}
	if err != nil {
		logger.Error("download failed", "attempts", d.Snapshot().Attempt, "error", err)
		d.transition(StateError, err)
		return
	}

	// The artifact is committed; record it even if the download was cancelled
	// in the meantime so the cache matches the disk.
	m.cache.Add(d.Source, &d.Entry, &d.Chapter)

	m.mu.Lock()
	queued := m.byKey[d.key()] == d
	m.removeLocked(d)
	if queued {
		if err := d.transition(StateDownloaded, nil); err != nil {
			logger.Warn("unexpected state after download", "error", err)
		}
	}
	m.mu.Unlock()
	logger.Info("download complete")
}

func (m *Manager) fetchWithRetry(ctx context.Context, d *Download, logger *slog.Logger) error {
	src, ok := m.resolver.Get(d.Source)
	if !ok || sources.IsStub(src) {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, d.Source)
	}

	policy := m.opts.Retry
	var err error
	for attempt := 1; attempt <= policy.attempts(); attempt++ {
		d.beginAttempt()
		err = m.fetch(ctx, d, src)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if attempt < policy.attempts() {
			wait := policy.delay(attempt)
			logger.Warn("download attempt failed, retrying", "attempt", attempt, "wait", wait, "error", err)
			if serr := sleepContext(ctx, wait); serr != nil {
				return serr
			}
		}
	}
	return err
}

func (m *Manager) fetch(ctx context.Context, d *Download, src sources.Source) error {
	tmpDir := m.provider.TempChapterDir(d.Source, d.Entry.Title, &d.Chapter)
	finalDir := m.provider.ChapterDir(d.Source, d.Entry.Title, &d.Chapter)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("failed to create chapter directory: %w", err)
	}

	media := d.Media()
	if media == nil {
		var err error
		media, err = src.GetMedia(ctx, &d.Entry, &d.Chapter)
		if err != nil {
			return fmt.Errorf("failed to get media: %w", err)
		}
		if media == nil || len(media.Segments) == 0 {
			return fmt.Errorf("no segments found for chapter")
		}
		d.setMedia(media)
	}

	aggCtx, stopAggregator := context.WithCancel(ctx)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		m.aggregator.Run(aggCtx, d, d.setProgress)
	}()
	defer func() {
		stopAggregator()
		<-aggDone
	}()

	if err := m.fetchSegments(ctx, d, src, media, tmpDir); err != nil {
		return err
	}
	if !d.allSegmentsDone() {
		return ErrIncomplete
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.provider.Commit(tmpDir, finalDir)
}
