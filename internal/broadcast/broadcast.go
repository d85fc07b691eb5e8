// Package broadcast fans room events out to live subscribers.
package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"roomsync/internal/events"
	"roomsync/internal/metrics"
	"sync"
)

var (
	// ErrUnknownTarget is returned when a directed event names a recipient
	// with no live subscription.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrSlowConsumer is reported by a subscription that was closed because
	// its queue filled up.
	ErrSlowConsumer = errors.New("subscriber queue full")
)

const DefaultQueueSize = 256

// Subscription is a scoped handle on a room's event stream. Events arrive on
// C in sequence order until Close is called or the bus drops the subscriber.
type Subscription struct {
	RoomID       string
	SubscriberID string

	ch     chan events.Event
	bus    *Bus
	room   *roomSubs
	closed bool // guarded by room.mu

	errMu sync.Mutex
	err   error
}

// C returns the inbound event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan events.Event {
	return s.ch
}

// Err reports why the bus ended the subscription, or nil after a normal Close.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close unsubscribes. Once Close returns no further event is delivered.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

type roomSubs struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	byID   map[string]*Subscription
	pruned bool // set once the entry is unlinked from Bus.rooms
}

// Bus keeps two indices per room: every subscription of the room, and the
// single subscription held by each subscriber identity. b.mu only guards the
// room map and is never held while a room is locked, so rooms do not
// contend with each other.
type Bus struct {
	mu        sync.RWMutex
	rooms     map[string]*roomSubs
	queueSize int
	metrics   *metrics.Metrics
}

func NewBus(queueSize int, m *metrics.Metrics) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		rooms:     make(map[string]*roomSubs),
		queueSize: queueSize,
		metrics:   m,
	}
}

func (b *Bus) lookup(roomID string) *roomSubs {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rooms[roomID]
}

// Subscribe registers subscriberID on roomID. A second Subscribe for the same
// subscriberID replaces the identity mapping; the older subscription keeps
// receiving room-wide events until closed.
func (b *Bus) Subscribe(roomID, subscriberID string) *Subscription {
	sub := &Subscription{
		RoomID:       roomID,
		SubscriberID: subscriberID,
		ch:           make(chan events.Event, b.queueSize),
		bus:          b,
	}

	r := b.lockRoom(roomID, true)
	sub.room = r
	r.subs[sub] = struct{}{}
	r.byID[subscriberID] = sub
	r.mu.Unlock()

	b.metrics.SubscriptionOpened()
	return sub
}

// lockRoom returns roomID's entry with its lock held, or nil when the room
// has none and create is false. Entries pruned in the meantime are skipped.
func (b *Bus) lockRoom(roomID string, create bool) *roomSubs {
	for {
		r := b.lookup(roomID)
		if r == nil {
			if !create {
				return nil
			}
			b.mu.Lock()
			r = b.rooms[roomID]
			if r == nil {
				r = &roomSubs{
					subs: make(map[*Subscription]struct{}),
					byID: make(map[string]*Subscription),
				}
				b.rooms[roomID] = r
			}
			b.mu.Unlock()
		}
		r.mu.Lock()
		if !r.pruned {
			return r
		}
		r.mu.Unlock()

		b.mu.Lock()
		if b.rooms[roomID] == r {
			delete(b.rooms, roomID)
		}
		b.mu.Unlock()
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	r := sub.room
	r.mu.Lock()
	b.removeLocked(r, sub, nil)
	empty := len(r.subs) == 0 && !r.pruned
	if empty {
		r.pruned = true
	}
	r.mu.Unlock()

	if empty {
		b.mu.Lock()
		if b.rooms[sub.RoomID] == r {
			delete(b.rooms, sub.RoomID)
		}
		b.mu.Unlock()
	}
}

// removeLocked detaches sub and closes its channel. Caller holds r.mu.
func (b *Bus) removeLocked(r *roomSubs, sub *Subscription, cause error) {
	if sub.closed {
		return
	}
	sub.closed = true
	sub.errMu.Lock()
	sub.err = cause
	sub.errMu.Unlock()
	delete(r.subs, sub)
	if r.byID[sub.SubscriberID] == sub {
		delete(r.byID, sub.SubscriberID)
	}
	close(sub.ch)
	b.metrics.SubscriptionClosed()
}

// Publish delivers ev without blocking. Untargeted events go to every
// subscription of ev.RoomID; directed events go only to the target's
// subscription and fail with ErrUnknownTarget when it has none.
// A subscriber whose queue is full is disconnected with ErrSlowConsumer.
func (b *Bus) Publish(ev events.Event) error {
	r := b.lockRoom(ev.RoomID, false)
	if r == nil {
		if ev.Directed() {
			b.metrics.DirectedMiss()
			return fmt.Errorf("event %d for %q: %w", ev.Seq, ev.TargetID, ErrUnknownTarget)
		}
		return nil
	}
	defer r.mu.Unlock()

	if ev.Directed() {
		sub, ok := r.byID[ev.TargetID]
		if !ok {
			b.metrics.DirectedMiss()
			return fmt.Errorf("event %d for %q: %w", ev.Seq, ev.TargetID, ErrUnknownTarget)
		}
		b.deliverLocked(r, sub, ev)
		return nil
	}

	for sub := range r.subs {
		b.deliverLocked(r, sub, ev)
	}
	return nil
}

func (b *Bus) deliverLocked(r *roomSubs, sub *Subscription, ev events.Event) {
	select {
	case sub.ch <- ev:
	default:
		slog.Warn("dropping slow subscriber", "component", "broadcast",
			"room_id", sub.RoomID, "subscriber_id", sub.SubscriberID, "seq", ev.Seq)
		b.metrics.SlowSubscriber()
		b.removeLocked(r, sub, ErrSlowConsumer)
	}
}

// Subscribers returns the number of live subscriptions on roomID.
func (b *Bus) Subscribers(roomID string) int {
	r := b.lockRoom(roomID, false)
	if r == nil {
		return 0
	}
	defer r.mu.Unlock()
	return len(r.subs)
}
