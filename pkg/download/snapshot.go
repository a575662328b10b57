package download

import (
	"sync"
)

// Snapshot is an immutable view of a Download at one point of its lifecycle.
type Snapshot struct {
	ID          string // Instance id, differs between re-creations of the same chapter
	EntryID     string
	EntryTitle  string
	ChapterID   string
	ChapterName string
	SourceID    string

	State        State
	Progress     int
	Segments     int
	BytesWritten int64
	Attempt      int
	Err          error

	// Removed marks the final snapshot of a cancelled or deleted download.
	Removed bool
	// Seq increases with every snapshot published by the same instance.
	Seq uint64
}

// Key identifies the chapter a snapshot belongs to across sources.
func (s Snapshot) Key() string {
	return Key(s.SourceID, s.ChapterID)
}

// Key builds the identity of a chapter download. Chapter ids are only unique
// within their source.
func Key(sourceID, chapterID string) string {
	return sourceID + "\x00" + chapterID
}

// Hub fans snapshots out to subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber. A nil match receives every snapshot.
func (h *Hub) Subscribe(match func(Snapshot) bool) *Subscription {
	sub := &Subscription{
		hub:     h,
		match:   match,
		pending: make(map[string]Snapshot),
		signal:  make(chan struct{}, 1),
		out:     make(chan Snapshot),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish never blocks on slow subscribers.
func (h *Hub) Publish(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.match == nil || sub.match(s) {
			sub.push(s)
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Subscription delivers snapshots in per-chapter order. When the consumer
// falls behind, pending snapshots of the same chapter are coalesced and only
// the newest one is delivered.
type Subscription struct {
	hub   *Hub
	match func(Snapshot) bool

	mu      sync.Mutex
	order   []string
	pending map[string]Snapshot

	signal    chan struct{}
	out       chan Snapshot
	done      chan struct{}
	closeOnce sync.Once
}

// Updates is closed after Close.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.out
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

func (s *Subscription) push(snap Snapshot) {
	s.mu.Lock()
	key := snap.Key()
	if _, ok := s.pending[key]; !ok {
		s.order = append(s.order, key)
	}
	s.pending[key] = snap
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Snapshot{}, false
	}
	key := s.order[0]
	s.order = s.order[1:]
	snap := s.pending[key]
	delete(s.pending, key)
	return snap, true
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		snap, ok := s.pop()
		if !ok {
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- snap:
		case <-s.done:
			return
		}
	}
}
