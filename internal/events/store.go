// Package events holds the per-room append-only event log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"roomsync/internal/metrics"
	"sync"
	"time"
)

// Publisher receives every appended event while the room's append section
// is still held, so delivery order matches sequence order.
type Publisher interface {
	Publish(Event) error
}

type roomLog struct {
	mu     sync.Mutex
	events []Event
}

// Store is an in-memory EventLog. Sequence numbers are assigned per room
// under that room's lock; rooms never share a lock on the append path.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*roomLog
	pub     Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStore creates a Store. pub may be nil.
func NewStore(pub Publisher, m *metrics.Metrics) *Store {
	return &Store{
		rooms:   make(map[string]*roomLog),
		pub:     pub,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// room returns the per-room log, creating one if it doesn't exist.
func (s *Store) room(roomID string) *roomLog {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r
	}
	r = &roomLog{}
	s.rooms[roomID] = r
	return r
}

// lookup returns the per-room log without creating it.
func (s *Store) lookup(roomID string) *roomLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

type appendOptions struct {
	actorID  string
	targetID string
}

type AppendOption func(*appendOptions)

// WithActor records who caused the event.
func WithActor(id string) AppendOption {
	return func(o *appendOptions) { o.actorID = id }
}

// WithTarget addresses the event to a single recipient.
func WithTarget(id string) AppendOption {
	return func(o *appendOptions) { o.targetID = id }
}

// Append assigns the next sequence number, stores the event and hands it to
// the publisher as one unit. The event is stored even when publishing fails;
// the publish error is returned alongside it.
func (s *Store) Append(_ context.Context, roomID string, eventType Type, data any, opts ...AppendOption) (Event, error) {
	var o appendOptions
	for _, opt := range opts {
		opt(&o)
	}

	payload, err := marshalData(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s data: %w", eventType, err)
	}

	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := Event{
		Seq:       uint64(len(r.events)) + 1,
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: s.now(),
		ActorID:   o.actorID,
		TargetID:  o.targetID,
		Data:      payload,
	}
	r.events = append(r.events, ev)
	s.metrics.EventAppended(string(eventType))
	slog.Debug("event appended", "component", "events", "room_id", roomID, "seq", ev.Seq, "type", eventType)

	if s.pub != nil {
		if err := s.pub.Publish(ev); err != nil {
			return ev, fmt.Errorf("publish event %d: %w", ev.Seq, err)
		}
	}
	return ev, nil
}

func marshalData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}

// Tail returns the most recent limit events and the room's true last
// sequence number, which may lie beyond the returned window's start.
// A limit <= 0 returns the whole log.
func (s *Store) Tail(roomID string, limit int) ([]Event, uint64) {
	r := s.lookup(roomID)
	if r == nil {
		return []Event{}, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return clone(events), uint64(len(r.events))
}

// ReadAfter returns events with seq > afterSeq in ascending order, capped at
// limit (<= 0 means no cap), and the room's last sequence number.
func (s *Store) ReadAfter(roomID string, afterSeq uint64, limit int) ([]Event, uint64) {
	r := s.lookup(roomID)
	if r == nil {
		return []Event{}, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	last := uint64(len(r.events))
	if afterSeq >= last {
		return []Event{}, last
	}
	// seq n lives at index n-1
	events := r.events[afterSeq:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return clone(events), last
}

// LastSeq returns the room's highest sequence number, 0 for an empty or
// unknown room.
func (s *Store) LastSeq(roomID string) uint64 {
	r := s.lookup(roomID)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.events))
}

// Drop forgets a room's log entirely.
func (s *Store) Drop(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func clone(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
