package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padsync/padsync/pkg/types"
)

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishFansOutToPadSubscribers(t *testing.T) {
	b := NewBroadcaster(8)
	sub1 := b.Subscribe("pad1")
	sub2 := b.Subscribe("pad1")
	other := b.Subscribe("pad2")
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)
	defer b.Unsubscribe(other)

	b.Publish("pad1", UpsertEvent(types.EventMarker, &types.Marker{ID: "m1"}))

	for _, sub := range []*Subscriber{sub1, sub2} {
		ev := receive(t, sub)
		assert.Equal(t, types.EventMarker, ev.Name)
		assert.Equal(t, "pad1", ev.PadID)
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("pad2 subscriber received %v", ev)
	default:
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := NewBroadcaster(2)
	sub := b.Subscribe("pad1")
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish("pad1", DeleteEvent(types.EventDeleteMarker, "m"))
	}

	// The slow subscriber holds at most its buffer; nothing blocked.
	count := 0
	for {
		select {
		case <-sub.Events():
			count++
		default:
			assert.Equal(t, 2, count)
			return
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(2)
	sub := b.Subscribe("pad1")
	b.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open)

	// Publishing after unsubscribe delivers nothing and does not panic.
	b.Publish("pad1", DeleteEvent(types.EventDeletePad, "pad1"))

	// Double unsubscribe is a no-op.
	b.Unsubscribe(sub)
}

func TestSubscriberCount(t *testing.T) {
	b := NewBroadcaster(2)
	require.Equal(t, 0, b.SubscriberCount("pad1"))

	sub1 := b.Subscribe("pad1")
	sub2 := b.Subscribe("pad1")
	b.Subscribe("pad2")

	assert.Equal(t, 2, b.SubscriberCount("pad1"))
	assert.Equal(t, 1, b.SubscriberCount("pad2"))

	b.Unsubscribe(sub1)
	b.Unsubscribe(sub2)
	assert.Equal(t, 0, b.SubscriberCount("pad1"))
}

func TestLinePointsEvent(t *testing.T) {
	points := []types.TrackPoint{{Idx: 0, Lat: 1, Lon: 1, Zoom: 1}}
	ev := LinePointsEvent("line1", points, true)

	assert.Equal(t, types.EventLinePoints, ev.Name)
	payload, ok := ev.Data.(types.LinePointsPayload)
	require.True(t, ok)
	assert.Equal(t, "line1", payload.ID)
	assert.True(t, payload.Reset)
	assert.Equal(t, points, payload.TrackPoints)
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(1)

	// Publishers racing Unsubscribe must never send on the closed channel.
	for i := 0; i < 500; i++ {
		sub := b.Subscribe("pad1")

		start := make(chan struct{})
		done := make(chan struct{})
		go func() {
			<-start
			for j := 0; j < 20; j++ {
				b.Publish("pad1", Event{Name: types.EventMarker})
			}
			close(done)
		}()

		close(start)
		b.Unsubscribe(sub)
		<-done

		// Drain whatever landed before the close.
		for range sub.Events() {
		}
	}
}
