package rooms

import (
	"errors"
	"fmt"
	"roomsync/internal/games"
	"sync"
	"time"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomClosed      = errors.New("room closed")
	ErrUnknownGameType = errors.New("unknown game type")
)

// Room owns one live game instance. Every game call goes through WithGame,
// which is the room's exclusive section.
type Room struct {
	ID        string
	Code      string
	GameType  string
	CreatedAt time.Time

	mu     sync.Mutex
	game   games.Game
	closed bool
}

// WithGame runs fn with the room's game while holding the room lock.
// A closed room rejects every call.
func (r *Room) WithGame(fn func(games.Game) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%w: %w", ErrRoomClosed, games.Errorf(games.StateIncompatibility, "Room is closed."))
	}
	return fn(r.game)
}

// Close marks the room closed. It reports false if the room was already
// closed.
func (r *Room) Close() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.closed = true
	return true
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Summary is the listing view of a room.
type Summary struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	GameType    string    `json:"game_type"`
	CreatedAt   time.Time `json:"created_at"`
	Closed      bool      `json:"closed"`
	Players     int       `json:"players"`
	MaxPlayers  int       `json:"max_players"`
	Connections int       `json:"connections"`
}

// Summary reports the room's roster size without the caller taking the lock.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		ID:         r.ID,
		Code:       r.Code,
		GameType:   r.GameType,
		CreatedAt:  r.CreatedAt,
		Closed:     r.closed,
		Players:    len(r.game.CurrentPlayers()),
		MaxPlayers: r.game.PlayerSpec().Max,
	}
}
