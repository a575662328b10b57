package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kerbaras/audiobooks/pkg/sources"
	"golang.org/x/sync/errgroup"
)

// fetchSegments writes every segment of media into dir. Segments finished by
// an earlier attempt are kept as they are.
func (m *Manager) fetchSegments(ctx context.Context, d *Download, src sources.Source, media *sources.Media, dir string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.SegmentWorkers)

	for i, seg := range media.Segments {
		c := d.segment(i)
		path := filepath.Join(dir, SegmentFileName(i, media.Format))
		if c.done.Load() && segmentOnDisk(path, c.written.Load()) {
			continue
		}
		g.Go(func() error {
			if err := m.fetchSegment(ctx, d, src, seg, c, path); err != nil {
				return fmt.Errorf("segment %d: %w", i+1, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) fetchSegment(ctx context.Context, d *Download, src sources.Source, seg sources.Segment, c *segmentCounter, path string) error {
	if err := m.throttle(ctx); err != nil {
		return err
	}

	body, size, err := src.OpenSegment(ctx, seg)
	if err != nil {
		return err
	}
	defer body.Close()

	if size <= 0 {
		size = seg.Size
	}
	c.reset(size)
	d.notifyChanged()

	part := path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(io.MultiWriter(f, segmentWriter{d: d, c: c}), contextReader{ctx: ctx, r: body})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return err
	}
	if size > 0 && n != size {
		os.Remove(part)
		return fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, n, size)
	}
	if err := os.Rename(part, path); err != nil {
		return fmt.Errorf("failed to save segment: %w", err)
	}

	if size <= 0 {
		c.size.Store(n)
	}
	c.done.Store(true)
	d.notifyChanged()
	return nil
}

// throttle waits for the next request slot when a request interval is set.
// The limiter is only replaced while no worker runs.
func (m *Manager) throttle(ctx context.Context) error {
	limiter := m.rateLimiter
	if limiter == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-limiter.C:
		return nil
	}
}

func segmentOnDisk(path string, size int64) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() == size
}

// contextReader stops a copy as soon as ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
