// Package broadcast provides the in-process mutation fan-out bus. Every
// successful persisted mutation is published exactly once, after its history
// append, and delivered at-most-once to each subscriber of the affected pad.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/padsync/padsync/pkg/types"
)

// Event is one mutation notification.
type Event struct {
	// Name is one of the types.Event* push event names.
	Name  string
	PadID string
	// Data is the event payload: the upserted object, a
	// types.DeletePayload, a types.LinePointsPayload or a
	// types.HistoryEntry.
	Data any
}

// Broadcaster fans events out to the live subscriber set of a pad.
type Broadcaster struct {
	subscribers sync.Map // subscriber id -> *Subscriber
	bufferSize  int
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold
// bufferSize events.
func NewBroadcaster(bufferSize int) *Broadcaster {
	return &Broadcaster{
		bufferSize: bufferSize,
	}
}

// Publish sends an event to all current subscribers of the pad.
// Non-blocking: if a subscriber's channel is full, the event is dropped for
// that subscriber. Delivery is evaluated against the subscriber set at
// publish time; there is no retry and nothing is persisted — a disconnected
// client re-derives current state through a fresh fill on reconnect.
func (b *Broadcaster) Publish(padID string, ev Event) {
	ev.PadID = padID
	b.subscribers.Range(func(key, value interface{}) bool {
		value.(*Subscriber).deliver(ev)
		return true
	})
}

// Subscribe attaches a new subscriber to a pad.
func (b *Broadcaster) Subscribe(padID string) *Subscriber {
	sub := &Subscriber{
		ID:    uuid.New().String(),
		PadID: padID,
		ch:    make(chan Event, b.bufferSize),
	}
	b.subscribers.Store(sub.ID, sub)
	return sub
}

// Unsubscribe detaches a subscriber and closes its channel. Events published
// after this call are never delivered to the subscriber.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if _, ok := b.subscribers.LoadAndDelete(sub.ID); ok {
		// A publisher can still hold the subscriber from a Range that ran
		// before the delete; the closed flag keeps its send off the closing
		// channel.
		sub.mu.Lock()
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()
	}
}

// SubscriberCount returns the number of live subscribers of a pad.
func (b *Broadcaster) SubscriberCount(padID string) int {
	count := 0
	b.subscribers.Range(func(key, value interface{}) bool {
		if value.(*Subscriber).PadID == padID {
			count++
		}
		return true
	})
	return count
}

// Subscriber is one connection's attachment to a pad's event stream.
type Subscriber struct {
	ID    string
	PadID string

	mu     sync.Mutex
	closed bool
	ch     chan Event
}

// deliver sends one event without blocking. A full channel drops the event;
// a concurrently unsubscribed subscriber is skipped.
func (s *Subscriber) deliver(ev Event) {
	if s.PadID != ev.PadID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		// Channel full - drop the event, do NOT block
	}
}

// Events returns the subscriber's receive channel. It is closed by
// Unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Convenience constructors for the standard mutation events.

func UpsertEvent(name string, obj any) Event {
	return Event{Name: name, Data: obj}
}

func DeleteEvent(name, objectID string) Event {
	return Event{Name: name, Data: types.DeletePayload{ID: objectID}}
}

func LinePointsEvent(lineID string, points []types.TrackPoint, reset bool) Event {
	return Event{Name: types.EventLinePoints, Data: types.LinePointsPayload{
		ID:          lineID,
		TrackPoints: points,
		Reset:       reset,
	}}
}
