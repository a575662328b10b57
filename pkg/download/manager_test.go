package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeSource serves two segments per chapter from memory.
type fakeSource struct {
	id        string
	mu        sync.Mutex
	mediaErr  map[string]error
	failOpens map[string]int

	// gate, when set, holds every OpenSegment until it is closed.
	gate chan struct{}
	// stubborn makes gated opens ignore cancellation.
	stubborn bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		mediaErr:  make(map[string]error),
		failOpens: make(map[string]int),
	}
}

func (f *fakeSource) ID() string {
	if f.id == "" {
		return "fake"
	}
	return f.id
}

func (f *fakeSource) Name() string { return "Fake" }

func (f *fakeSource) Search(context.Context, string) ([]data.Entry, error) {
	return nil, nil
}

func (f *fakeSource) GetEntry(context.Context, string) (*data.Entry, error) {
	return nil, nil
}

func (f *fakeSource) GetChapters(context.Context, *data.Entry) ([]*data.Chapter, error) {
	return nil, nil
}

func (f *fakeSource) GetMedia(_ context.Context, _ *data.Entry, ch *data.Chapter) (*sources.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mediaErr[ch.ID]; err != nil {
		return nil, err
	}
	return &sources.Media{
		Format: "mp3",
		Segments: []sources.Segment{
			{URL: ch.ID + "/1", Size: int64(len(segmentBody(ch.ID + "/1")))},
			{URL: ch.ID + "/2"},
		},
	}, nil
}

func (f *fakeSource) OpenSegment(ctx context.Context, seg sources.Segment) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	gate, stubborn := f.gate, f.stubborn
	if f.failOpens[seg.URL] > 0 {
		f.failOpens[seg.URL]--
		f.mu.Unlock()
		return nil, 0, errors.New("connection reset")
	}
	f.mu.Unlock()

	if gate != nil {
		if stubborn {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
	}

	body := segmentBody(seg.URL)
	size := int64(len(body))
	if seg.Size == 0 {
		size = -1
	}
	return io.NopCloser(bytes.NewReader(body)), size, nil
}

func segmentBody(url string) []byte {
	return bytes.Repeat([]byte(url), 512)
}

var testEntry = &data.Entry{ID: "e1", Title: "Dune", Source: "fake"}

func testChapter(n int) *data.Chapter {
	return &data.Chapter{
		ID:      fmt.Sprintf("c%d", n),
		EntryID: testEntry.ID,
		Name:    fmt.Sprintf("Chapter %d", n),
		Number:  float64(n),
	}
}

func newTestManager(t *testing.T, src sources.Source, opts Options) (*Manager, *Cache, *Provider) {
	t.Helper()
	p := NewProvider(t.TempDir())
	c := NewCache(p, CacheOptions{RenewInterval: time.Hour})
	require.NoError(t, c.Rebuild(context.Background()))

	m := NewManager(sources.NewRegistry(src), p, c, opts)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop() })
	return m, c, p
}

// waitFor reads snapshots until one satisfies ok.
func waitFor(t *testing.T, sub *Subscription, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-sub.Updates():
			if ok(s) {
				return s
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
			return Snapshot{}
		}
	}
}

func inState(state State) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.State == state && !s.Removed }
}

func isRemoved(s Snapshot) bool { return s.Removed }

func TestManagerDownloadsChapter(t *testing.T) {
	src := newFakeSource()
	m, cache, p := newTestManager(t, src, Options{})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	assert.False(t, cache.IsChapterDownloaded(ch.Name, ch.Scanlator, testEntry.Title, "fake"))

	n, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lastProgress := 0
	final := waitFor(t, sub, func(s Snapshot) bool {
		if s.State == StateDownloading {
			assert.GreaterOrEqual(t, s.Progress, lastProgress)
			lastProgress = s.Progress
		}
		return s.State == StateDownloaded
	})
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 2, final.Segments)
	assert.True(t, cache.IsChapterDownloaded(ch.Name, ch.Scanlator, testEntry.Title, "fake"))
	assert.Equal(t, 1, cache.DownloadCount(testEntry))

	dir := p.ChapterDir("fake", testEntry.Title, ch)
	got, err := os.ReadFile(filepath.Join(dir, "001.mp3"))
	require.NoError(t, err)
	assert.Equal(t, segmentBody("c1/1"), got)
	assert.FileExists(t, filepath.Join(dir, "002.mp3"))
	assert.NoDirExists(t, p.TempChapterDir("fake", testEntry.Title, ch))

	assert.Eventually(t, func() bool { return len(m.Queue()) == 0 }, time.Second, 5*time.Millisecond)

	// Already downloaded chapters are not queued again.
	n, err = m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestManagerRejectsUnavailableSource(t *testing.T) {
	m, _, _ := newTestManager(t, newFakeSource(), Options{})

	_, err := m.Enqueue(testEntry, []*data.Chapter{testChapter(1)}, "missing")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	reg := sources.NewRegistry(sources.NewStub("stub"))
	stubbed := NewManager(reg, NewProvider(t.TempDir()), NewCache(NewProvider(t.TempDir()), CacheOptions{}), Options{})
	_, err = stubbed.Enqueue(testEntry, []*data.Chapter{testChapter(1)}, "stub")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	assert.Empty(t, m.Queue())
}

func TestManagerEnqueueTwiceIsNoop(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	m, _, _ := newTestManager(t, src, Options{Workers: 4})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	n, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.Enqueue(testEntry, []*data.Chapter{ch, ch}, "fake")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, m.Queue(), 1)

	close(src.gate)
	waitFor(t, sub, inState(StateDownloaded))
}

func TestManagerErrorDoesNotHaltQueue(t *testing.T) {
	src := newFakeSource()
	src.mediaErr["c1"] = errors.New("media unavailable")
	m, cache, _ := newTestManager(t, src, Options{Workers: 1})
	ch1, ch2 := testChapter(1), testChapter(2)
	sub := m.Subscribe()
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch1, ch2}, "fake")
	require.NoError(t, err)

	failed := waitFor(t, sub, func(s Snapshot) bool { return s.ChapterID == "c1" && s.State == StateError })
	assert.ErrorContains(t, failed.Err, "media unavailable")
	waitFor(t, sub, func(s Snapshot) bool { return s.ChapterID == "c2" && s.State == StateDownloaded })

	assert.False(t, cache.IsChapterDownloaded(ch1.Name, "", testEntry.Title, "fake"))
	queue := m.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, StateError, queue[0].State)
	assert.Equal(t, 0, m.Pending())

	// Failed chapters stay failed until the caller queues them again.
	src.mu.Lock()
	delete(src.mediaErr, "c1")
	src.mu.Unlock()
	n, err := m.Enqueue(testEntry, []*data.Chapter{ch1}, "fake")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	waitFor(t, sub, func(s Snapshot) bool { return s.ChapterID == "c1" && s.State == StateDownloaded })
}

func TestManagerRetriesWithPolicy(t *testing.T) {
	src := newFakeSource()
	src.failOpens["c1/1"] = 1
	m, _, _ := newTestManager(t, src, Options{Retry: RetryPolicy{Attempts: 2, Backoff: time.Millisecond}})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)

	final := waitFor(t, sub, func(s Snapshot) bool { return s.State.IsFinished() })
	assert.Equal(t, StateDownloaded, final.State)
	assert.Equal(t, 2, final.Attempt)
}

func TestManagerNoAutoRetryByDefault(t *testing.T) {
	src := newFakeSource()
	src.failOpens["c1/1"] = 1
	m, _, _ := newTestManager(t, src, Options{})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)

	final := waitFor(t, sub, func(s Snapshot) bool { return s.State.IsFinished() })
	assert.Equal(t, StateError, final.State)
	assert.Equal(t, 1, final.Attempt)
}

func TestManagerCancelDiscardsPartialDownload(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	defer close(src.gate)
	m, cache, p := newTestManager(t, src, Options{})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	waitFor(t, sub, inState(StateDownloading))

	assert.True(t, m.Cancel(ch.ID))
	assert.False(t, m.Cancel(ch.ID))
	waitFor(t, sub, isRemoved)

	// The removal is the last snapshot of the cancelled download.
	select {
	case s := <-sub.Updates():
		t.Fatalf("snapshot after removal: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}

	tmp := p.TempChapterDir("fake", testEntry.Title, ch)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(tmp)
		return os.IsNotExist(err)
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "fake"))
	assert.Empty(t, m.Queue())
}

func TestManagerCancelEntry(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	defer close(src.gate)
	m, _, _ := newTestManager(t, src, Options{Workers: 1})

	_, err := m.Enqueue(testEntry, []*data.Chapter{testChapter(1), testChapter(2), testChapter(3)}, "fake")
	require.NoError(t, err)
	other := &data.Entry{ID: "e2", Title: "Emma", Source: "fake"}
	_, err = m.Enqueue(other, []*data.Chapter{{ID: "x1", EntryID: "e2", Name: "Volume 1"}}, "fake")
	require.NoError(t, err)

	assert.Equal(t, 3, m.CancelEntry(testEntry.ID))
	queue := m.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, "x1", queue[0].ChapterID)
}

func TestManagerReorder(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	defer close(src.gate)
	m, _, _ := newTestManager(t, src, Options{Workers: 1})
	sub := m.SubscribeChapter("c1")
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{testChapter(1), testChapter(2), testChapter(3)}, "fake")
	require.NoError(t, err)
	waitFor(t, sub, inState(StateDownloading))

	m.Reorder([]string{"c3", "missing", "c3"})

	var ids []string
	for _, s := range m.Queue() {
		ids = append(ids, s.ChapterID)
	}
	assert.Equal(t, []string{"c3", "c1", "c2"}, ids)
}

func TestManagerOneActiveDownloadPerChapter(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	src.stubborn = true
	m, cache, _ := newTestManager(t, src, Options{Workers: 2})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	first := waitFor(t, sub, inState(StateDownloading))

	// The first download cannot unwind until the gate opens.
	require.True(t, m.Cancel(ch.ID))
	n, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	time.Sleep(50 * time.Millisecond)
	queue := m.Queue()
	require.Len(t, queue, 1)
	assert.NotEqual(t, first.ID, queue[0].ID)
	assert.Equal(t, StateQueued, queue[0].State)

	close(src.gate)
	final := waitFor(t, sub, func(s Snapshot) bool { return s.ID == queue[0].ID && s.State == StateDownloaded })
	assert.Equal(t, 100, final.Progress)
	assert.True(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "fake"))
}

func TestManagerDeleteChapters(t *testing.T) {
	src := newFakeSource()
	m, cache, p := newTestManager(t, src, Options{})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	waitFor(t, sub, inState(StateDownloaded))
	require.True(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "fake"))

	report := m.DeleteChapters(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, report.Err())
	assert.Len(t, report.Removed, 1)
	assert.False(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "fake"))
	assert.NoDirExists(t, p.ChapterDir("fake", testEntry.Title, ch))
}

func TestManagerDeleteChaptersSkipsMissingArtifacts(t *testing.T) {
	m, _, p := newTestManager(t, newFakeSource(), Options{})
	ch1, ch2 := testChapter(1), testChapter(2)
	require.NoError(t, os.MkdirAll(p.ChapterDir("fake", testEntry.Title, ch1), 0o755))

	report := m.DeleteChapters(testEntry, []*data.Chapter{ch1, ch2}, "fake")
	require.NoError(t, report.Err())
	require.Len(t, report.Removed, 1)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "c1", report.Removed[0].ID)
	assert.Equal(t, "c2", report.Skipped[0].ID)
}

func TestManagerDeleteWaitsForCommittingWorker(t *testing.T) {
	src := newFakeSource()
	m, cache, p := newTestManager(t, src, Options{})
	ch := testChapter(1)
	final := p.ChapterDir("fake", testEntry.Title, ch)

	committing := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p.remove = func(path string) error {
		if path == final {
			// The first removal of the final dir happens inside Commit.
			once.Do(func() {
				close(committing)
				<-release
			})
		}
		return os.RemoveAll(path)
	}

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	select {
	case <-committing:
	case <-time.After(5 * time.Second):
		t.Fatal("download never reached commit")
	}

	deleted := make(chan DeleteReport, 1)
	go func() { deleted <- m.DeleteChapters(testEntry, []*data.Chapter{ch}, "fake") }()

	select {
	case <-deleted:
		t.Fatal("delete returned while the worker was committing")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	var report DeleteReport
	select {
	case report = <-deleted:
	case <-time.After(5 * time.Second):
		t.Fatal("delete never returned")
	}
	require.NoError(t, report.Err())
	assert.Len(t, report.Removed, 1)
	assert.NoDirExists(t, final)
	assert.False(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "fake"))
	assert.Empty(t, m.Queue())
}

func TestManagerDeleteChaptersPartialFailure(t *testing.T) {
	src := newFakeSource()
	m, cache, p := newTestManager(t, src, Options{})
	ch1, ch2 := testChapter(1), testChapter(2)
	sub := m.Subscribe()
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch1, ch2}, "fake")
	require.NoError(t, err)
	waitFor(t, sub, func(s Snapshot) bool { return s.ChapterID == "c1" && s.State == StateDownloaded })
	waitFor(t, sub, func(s Snapshot) bool { return s.ChapterID == "c2" && s.State == StateDownloaded })

	locked := p.ChapterDir("fake", testEntry.Title, ch2)
	p.remove = func(path string) error {
		if path == locked {
			return os.ErrPermission
		}
		return os.RemoveAll(path)
	}

	report := m.DeleteChapters(testEntry, []*data.Chapter{ch1, ch2}, "fake")
	require.Len(t, report.Removed, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "c2", report.Failed[0].Chapter.ID)
	assert.ErrorIs(t, report.Err(), os.ErrPermission)

	assert.False(t, cache.IsChapterDownloaded(ch1.Name, "", testEntry.Title, "fake"))
	assert.True(t, cache.IsChapterDownloaded(ch2.Name, "", testEntry.Title, "fake"))
}

func TestManagerStopKeepsPartialFiles(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	defer close(src.gate)
	p := NewProvider(t.TempDir())
	cache := NewCache(p, CacheOptions{RenewInterval: time.Hour})
	m := NewManager(sources.NewRegistry(src), p, cache, Options{})
	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	_, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	waitFor(t, sub, inState(StateDownloading))

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), ErrNotRunning)

	failed := waitFor(t, sub, inState(StateError))
	assert.ErrorIs(t, failed.Err, context.Canceled)
	assert.DirExists(t, p.TempChapterDir("fake", testEntry.Title, ch))
}

func TestManagerLocksRoot(t *testing.T) {
	src := newFakeSource()
	_, cache, p := newTestManager(t, src, Options{})

	other := NewManager(sources.NewRegistry(src), p, cache, Options{})
	assert.ErrorIs(t, other.Start(context.Background()), ErrLocked)
}

func TestManagerConcurrentEnqueueRunsOnce(t *testing.T) {
	src := newFakeSource()
	m, cache, _ := newTestManager(t, src, Options{Workers: 4})
	ch := testChapter(1)
	sub := m.Subscribe()
	defer sub.Close()

	var added atomic.Int64
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			n, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
			added.Add(int64(n))
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), added.Load())

	// Downloaded snapshots per instance id.
	instances := make(map[string]int)
	record := func(s Snapshot) {
		if s.State == StateDownloaded {
			instances[s.ID]++
		} else if _, ok := instances[s.ID]; !ok {
			instances[s.ID] = 0
		}
	}
	waitFor(t, sub, func(s Snapshot) bool {
		record(s)
		return s.State == StateDownloaded
	})
	assert.Eventually(t, func() bool { return m.Pending() == 0 }, time.Second, 5*time.Millisecond)

	drain := time.After(100 * time.Millisecond)
	for done := false; !done; {
		select {
		case s := <-sub.Updates():
			record(s)
		case <-drain:
			done = true
		}
	}

	require.Len(t, instances, 1)
	for _, downloaded := range instances {
		assert.Equal(t, 1, downloaded)
	}
	assert.True(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "fake"))
}

func TestManagerKeysDownloadsBySource(t *testing.T) {
	primary := newFakeSource()
	mirror := newFakeSource()
	mirror.id = "mirror"
	p := NewProvider(t.TempDir())
	cache := NewCache(p, CacheOptions{RenewInterval: time.Hour})
	m := NewManager(sources.NewRegistry(primary, mirror), p, cache, Options{})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	ch := testChapter(1)
	sub := m.SubscribeChapter(ch.ID)
	defer sub.Close()

	n, err := m.Enqueue(testEntry, []*data.Chapter{ch}, "fake")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.Enqueue(testEntry, []*data.Chapter{ch}, "mirror")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "same chapter id from another source is a separate download")

	done := make(map[string]bool)
	waitFor(t, sub, func(s Snapshot) bool {
		if s.State == StateDownloaded {
			done[s.SourceID] = true
		}
		return len(done) == 2
	})
	assert.True(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "fake"))
	assert.True(t, cache.IsChapterDownloaded(ch.Name, "", testEntry.Title, "mirror"))
	assert.DirExists(t, p.ChapterDir("mirror", testEntry.Title, ch))
}
