package wshub

import (
	"roomsync/internal/metrics"
	"sync"
)

// Registry tracks live connections per room. It is bookkeeping for presence
// and cleanup only; delivery goes through the event bus.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[string]map[*Client]struct{}),
		metrics: m,
	}
}

// Connect adds c to its room.
func (r *Registry) Connect(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[c.RoomID]
	if !ok {
		set = make(map[*Client]struct{})
		r.rooms[c.RoomID] = set
	}
	if _, dup := set[c]; dup {
		return
	}
	set[c] = struct{}{}
	r.metrics.ConnectionOpened()
}

// Disconnect removes c. Removing an unknown client is a no-op.
func (r *Registry) Disconnect(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[c.RoomID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.rooms, c.RoomID)
	}
	r.metrics.ConnectionClosed()
}

// Count returns the number of live connections in roomID.
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Connected reports whether playerID has at least one live connection in
// roomID.
func (r *Registry) Connected(roomID, playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[roomID] {
		if c.PlayerID == playerID {
			return true
		}
	}
	return false
}
