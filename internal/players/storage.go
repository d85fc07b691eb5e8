// Package players keeps the identity records of everyone who joined a room.
package players

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "admin"
	RolePlayer = "player"
)

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"user_name"`
	Role     string    `json:"role"`
	RoomID   string    `json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`

	order uint64
}

type Store struct {
	mu      sync.Mutex
	players map[string]*Player
	next    uint64
}

func NewStore() *Store {
	return &Store{
		players: make(map[string]*Player),
	}
}

// Add creates a player in roomID. The first player of a room becomes its
// admin.
func (s *Store) Add(roomID, name string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := RolePlayer
	if s.countLocked(roomID) == 0 {
		role = RoleAdmin
	}
	p := &Player{
		ID:       uuid.NewString(),
		Name:     name,
		Role:     role,
		RoomID:   roomID,
		JoinedAt: time.Now(),
	}
	s.next++
	p.order = s.next
	s.players[p.ID] = p
	return p
}

// Get returns a copy of the player, or nil.
func (s *Store) Get(id string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, id)
}

// RemoveRoom forgets every player of roomID.
func (s *Store) RemoveRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.players {
		if p.RoomID == roomID {
			delete(s.players, id)
		}
	}
}

// InRoom lists roomID's players in join order.
func (s *Store) InRoom(roomID string) []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Player, 0)
	for _, p := range s.players {
		if p.RoomID == roomID {
			list = append(list, *p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })
	return list
}

func (s *Store) CountInRoom(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(roomID)
}

func (s *Store) countLocked(roomID string) int {
	n := 0
	for _, p := range s.players {
		if p.RoomID == roomID {
			n++
		}
	}
	return n
}
