package download

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/sources"
)

// Download is one chapter's download attempt. The entry and chapter are
// copies taken at enqueue time.
type Download struct {
	ID      string
	Entry   data.Entry
	Chapter data.Chapter
	Source  string

	publish func(Snapshot)

	mu       sync.Mutex
	state    State
	progress int
	attempt  int
	err      error
	seq      uint64
	removed  bool
	media    *sources.Media
	segments []*segmentCounter

	mediaReady chan struct{}
	changed    chan struct{}
}

func newDownload(entry data.Entry, chapter data.Chapter, sourceID string, publish func(Snapshot)) *Download {
	if publish == nil {
		publish = func(Snapshot) {}
	}
	return &Download{
		ID:         uuid.NewString(),
		Entry:      entry,
		Chapter:    chapter,
		Source:     sourceID,
		publish:    publish,
		state:      StateNotDownloaded,
		mediaReady: make(chan struct{}),
		changed:    make(chan struct{}, 1),
	}
}

func (d *Download) key() string {
	return Key(d.Source, d.Chapter.ID)
}

func (d *Download) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Download) Progress() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progress
}

func (d *Download) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Download) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Download) snapshotLocked() Snapshot {
	var written int64
	for _, c := range d.segments {
		written += c.written.Load()
	}
	return Snapshot{
		ID:           d.ID,
		EntryID:      d.Entry.ID,
		EntryTitle:   d.Entry.Title,
		ChapterID:    d.Chapter.ID,
		ChapterName:  d.Chapter.Name,
		SourceID:     d.Source,
		State:        d.state,
		Progress:     d.progress,
		Segments:     len(d.segments),
		BytesWritten: written,
		Attempt:      d.attempt,
		Err:          d.err,
		Removed:      d.removed,
		Seq:          d.seq,
	}
}

// emitLocked publishes while d.mu is held so snapshots of one download are
// observed in the order they were produced.
func (d *Download) emitLocked() {
	d.seq++
	d.publish(d.snapshotLocked())
}

func (d *Download) transition(to State, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return ErrRemoved
	}
	if !d.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.state, to)
	}
	d.state = to
	switch to {
	case StateQueued:
		d.err = nil
	case StateDownloaded:
		d.progress = 100
	case StateError:
		d.err = cause
	}
	d.emitLocked()
	return nil
}

// setProgress only moves forward and only while downloading.
func (d *Download) setProgress(p int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed || d.state != StateDownloading || p <= d.progress {
		return
	}
	if p > 100 {
		p = 100
	}
	d.progress = p
	d.emitLocked()
}

// markRemoved publishes the final snapshot of the download. Nothing is
// published after it.
func (d *Download) markRemoved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return
	}
	d.removed = true
	d.emitLocked()
}

func (d *Download) beginAttempt() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempt++
	return d.attempt
}

// Media returns the descriptor once the source resolved it.
func (d *Download) Media() *sources.Media {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.media
}

// MediaReady is closed once the media descriptor is known.
func (d *Download) MediaReady() <-chan struct{} {
	return d.mediaReady
}

// Changed signals that a segment counter moved. Signals coalesce.
func (d *Download) Changed() <-chan struct{} {
	return d.changed
}

func (d *Download) setMedia(media *sources.Media) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.media != nil {
		return
	}
	d.media = media
	d.segments = make([]*segmentCounter, len(media.Segments))
	for i, s := range media.Segments {
		d.segments[i] = &segmentCounter{}
		d.segments[i].size.Store(s.Size)
	}
	close(d.mediaReady)
}

func (d *Download) segment(i int) *segmentCounter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.segments[i]
}

// segmentPercents reads the counters without holding d.mu beyond copying the
// slice header, so writers are never blocked by aggregation.
func (d *Download) segmentPercents() []int {
	d.mu.Lock()
	segments := d.segments
	d.mu.Unlock()

	out := make([]int, len(segments))
	for i, c := range segments {
		out[i] = c.percent()
	}
	return out
}

func (d *Download) allSegmentsDone() bool {
	d.mu.Lock()
	segments := d.segments
	d.mu.Unlock()

	if len(segments) == 0 {
		return false
	}
	for _, c := range segments {
		if !c.done.Load() {
			return false
		}
	}
	return true
}

func (d *Download) notifyChanged() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

type segmentCounter struct {
	written atomic.Int64
	size    atomic.Int64
	done    atomic.Bool
}

func (c *segmentCounter) percent() int {
	if c.done.Load() {
		return 100
	}
	size := c.size.Load()
	if size <= 0 {
		return 0
	}
	p := c.written.Load() * 100 / size
	if p > 100 {
		p = 100
	}
	return int(p)
}

func (c *segmentCounter) reset(size int64) {
	c.done.Store(false)
	c.written.Store(0)
	c.size.Store(size)
}

// segmentWriter counts bytes flowing into a segment file.
type segmentWriter struct {
	d *Download
	c *segmentCounter
}

func (w segmentWriter) Write(p []byte) (int, error) {
	w.c.written.Add(int64(len(p)))
	w.d.notifyChanged()
	return len(p), nil
}
