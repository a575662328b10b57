package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case s, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(nil)
	defer sub.Close()

	hub.Publish(Snapshot{ChapterID: "a", Seq: 1})
	first := receive(t, sub)
	assert.Equal(t, uint64(1), first.Seq)

	hub.Publish(Snapshot{ChapterID: "a", Seq: 2})
	assert.Equal(t, uint64(2), receive(t, sub).Seq)
}

func TestHubCoalescesSlowSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(nil)
	defer sub.Close()

	// Nobody reads while these are published.
	for i := 1; i <= 50; i++ {
		hub.Publish(Snapshot{ChapterID: "a", Seq: uint64(i)})
	}
	hub.Publish(Snapshot{ChapterID: "b", Seq: 1})

	var lastA uint64
	seenB := false
	for !seenB || lastA != 50 {
		s := receive(t, sub)
		switch s.ChapterID {
		case "a":
			assert.Greater(t, s.Seq, lastA, "snapshots of one chapter went backwards")
			lastA = s.Seq
		case "b":
			seenB = true
		}
	}
}

func TestHubFiltersByMatch(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(func(s Snapshot) bool { return s.ChapterID == "wanted" })
	defer sub.Close()

	hub.Publish(Snapshot{ChapterID: "other"})
	hub.Publish(Snapshot{ChapterID: "wanted", Seq: 7})

	s := receive(t, sub)
	assert.Equal(t, "wanted", s.ChapterID)
	assert.Equal(t, uint64(7), s.Seq)
}

func TestSubscriptionClose(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(nil)
	sub.Close()
	sub.Close()

	hub.Publish(Snapshot{ChapterID: "a"})

	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("updates channel not closed")
	}
}
