// Package games defines the turn-based game engine shared by every concrete
// game: the status machine, the player roster, commands and typed errors.
package games

import (
	"context"
	"encoding/json"
	"roomsync/internal/events"
)

// Status is the round lifecycle: not_started -> ongoing -> {win, draw}.
// Reset, where a game supports it, returns to not_started.
type Status string

const (
	NotStarted Status = "not_started"
	Ongoing    Status = "ongoing"
	Draw       Status = "draw"
	Win        Status = "win"
)

func (s Status) CanBeStarted() bool { return s == NotStarted }

func (s Status) AcceptsPlayerActions() bool { return s == Ongoing }

func (s Status) Finished() bool { return s == Win || s == Draw }

// State holds the fields every game state carries. Concrete states embed it.
type State struct {
	CanStart bool   `json:"can_start"`
	Status   Status `json:"status"`
}

func (s *State) Base() *State { return s }

// Stater is implemented by pointers to concrete game states embedding State.
type Stater interface {
	Base() *State
}

type PlayerSpec struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type Metadata struct {
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description"`
	Instructions string   `json:"instructions"`
	Tags         []string `json:"tags"`
}

type PlayerStatus string

const (
	PlayerJoined         PlayerStatus = "joined"
	PlayerLeft           PlayerStatus = "left"
	PlayerConnectionLost PlayerStatus = "connection_lost"
)

// Player is the engine's own roster entry, distinct from the room's player
// view. Entries are never removed; their status changes instead.
type Player struct {
	ID       int          `json:"id"`
	Identity string       `json:"user_id"`
	Status   PlayerStatus `json:"status"`
}

// Appender is the slice of the event log a game writes to.
type Appender interface {
	Append(ctx context.Context, roomID string, eventType events.Type, data any, opts ...events.AppendOption) (events.Event, error)
}

// Command is an inbound game command. The set is closed: Start, Reset and
// Action are the only implementations.
type Command interface {
	Actor() string
	EventType() events.Type
	command()
}

type Start struct {
	ActorID string
}

type Reset struct {
	ActorID string
}

// Action carries a game-specific payload, validated by the concrete game.
type Action struct {
	ActorID string
	Data    json.RawMessage
}

func (c Start) Actor() string  { return c.ActorID }
func (c Reset) Actor() string  { return c.ActorID }
func (c Action) Actor() string { return c.ActorID }

func (Start) EventType() events.Type  { return events.GameStart }
func (Reset) EventType() events.Type  { return events.GameReset }
func (Action) EventType() events.Type { return events.GamePlayerAction }

func (Start) command()  {}
func (Reset) command()  {}
func (Action) command() {}

// Game is one live game instance bound to a room. Implementations are not
// safe for concurrent use; callers serialize access per room.
type Game interface {
	Metadata() Metadata
	PlayerSpec() PlayerSpec
	Players() []Player
	CurrentPlayers() []Player
	Joinable() error
	AddPlayer(ctx context.Context, identity string) (Player, error)
	SetPlayerStatus(ctx context.Context, identity string, status PlayerStatus) error
	Handle(ctx context.Context, cmd Command) error
	StateJSON() (json.RawMessage, error)
}
