package download

import (
	"context"
	"math"
	"time"
)

// DefaultProgressWindow bounds how often progress of one download is published.
const DefaultProgressWindow = 50 * time.Millisecond

// Mean returns the rounded arithmetic mean of the given percentages, each
// clamped to [0, 100].
func Mean(percents []int) int {
	if len(percents) == 0 {
		return 0
	}
	sum := 0
	for _, p := range percents {
		sum += min(max(p, 0), 100)
	}
	return int(math.Round(float64(sum) / float64(len(percents))))
}

// Aggregator turns the segment counters of a download into a single
// percentage stream.
type Aggregator struct {
	window time.Duration
}

func NewAggregator(window time.Duration) *Aggregator {
	if window < 0 {
		window = 0
	}
	return &Aggregator{window: window}
}

// Run emits 0, waits for the media descriptor, then emits the mean segment
// progress each time it changes. Values inside one window are coalesced into
// the latest; 100 is emitted without delay. Run returns when ctx is done.
func (a *Aggregator) Run(ctx context.Context, d *Download, emit func(int)) {
	last := 0
	emit(last)

	select {
	case <-d.MediaReady():
	case <-ctx.Done():
		return
	}

	var (
		pending  = -1
		lastEmit time.Time
		timer    *time.Timer
		timerC   <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	flush := func(p int) {
		stopTimer()
		pending = -1
		last = p
		lastEmit = time.Now()
		emit(p)
	}
	evaluate := func() {
		p := Mean(d.segmentPercents())
		if p == last {
			pending = -1
			return
		}
		if p == 100 || time.Since(lastEmit) >= a.window {
			flush(p)
			return
		}
		pending = p
		if timer == nil {
			timer = time.NewTimer(a.window - time.Since(lastEmit))
			timerC = timer.C
		}
	}

	defer stopTimer()
	evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.Changed():
			evaluate()
		case <-timerC:
			timer, timerC = nil, nil
			if pending >= 0 && pending != last {
				flush(pending)
			}
		}
	}
}
