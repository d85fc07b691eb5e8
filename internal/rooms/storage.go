package rooms

import (
	"fmt"
	"log/slog"
	"roomsync/internal/games"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTTL    = 6 * time.Hour
	sweepInterval = 5 * time.Minute
)

// Log is what the store needs from the event log: games append to it, and a
// removed room's history is dropped.
type Log interface {
	games.Appender
	Drop(roomID string)
}

type Store struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	codes    map[string]string
	catalog  *games.Catalog
	log      Log
	ttl      time.Duration
	onRemove func(*Room)
}

type Option func(*Store)

// WithOnRemove registers fn to run for every room deleted or swept.
func WithOnRemove(fn func(*Room)) Option {
	return func(s *Store) { s.onRemove = fn }
}

func NewStore(catalog *games.Catalog, log Log, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		rooms:   make(map[string]*Room),
		codes:   make(map[string]string),
		catalog: catalog,
		log:     log,
		ttl:     ttl,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepStale()
	return s
}

// Create opens a room running a fresh instance of gameType.
func (s *Store) Create(gameType string) (*Room, error) {
	if _, ok := s.catalog.Lookup(gameType); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameType, gameType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := uniqueCode(func(c string) bool {
		_, exists := s.codes[c]
		return exists
	})
	if err != nil {
		return nil, fmt.Errorf("generating room code: %w", err)
	}

	id := uuid.NewString()
	game, err := s.catalog.New(gameType, id, s.log)
	if err != nil {
		return nil, fmt.Errorf("creating game: %w", err)
	}
	room := &Room{
		ID:        id,
		Code:      code,
		GameType:  gameType,
		CreatedAt: time.Now(),
		game:      game,
	}
	s.rooms[id] = room
	s.codes[code] = id
	slog.Info("room created", "component", "rooms", "room_id", id, "code", code, "game_type", gameType)
	return room, nil
}

func (s *Store) Get(id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetByCode resolves a join code, ignoring case and surrounding space.
func (s *Store) GetByCode(code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[NormalizeCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.rooms[id], nil
}

// Delete removes the room and drops its event history.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	room, ok := s.rooms[id]
	if ok {
		s.removeLocked(room)
	}
	s.mu.Unlock()

	if ok && s.onRemove != nil {
		s.onRemove(room)
	}
}

// List returns every room, oldest first.
func (s *Store) List() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

func (s *Store) removeLocked(room *Room) {
	delete(s.rooms, room.ID)
	delete(s.codes, room.Code)
	s.log.Drop(room.ID)
}

// removeStale deletes rooms created more than ttl before now.
func (s *Store) removeStale(now time.Time) []*Room {
	s.mu.Lock()
	var removed []*Room
	for _, room := range s.rooms {
		if now.Sub(room.CreatedAt) > s.ttl {
			s.removeLocked(room)
			removed = append(removed, room)
		}
	}
	s.mu.Unlock()

	for _, room := range removed {
		slog.Info("stale room removed", "component", "rooms", "room_id", room.ID, "code", room.Code)
		if s.onRemove != nil {
			s.onRemove(room)
		}
	}
	return removed
}

func (s *Store) sweepStale() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for now := range ticker.C {
		s.removeStale(now)
	}
}
