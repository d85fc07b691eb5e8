package events

import (
	"encoding/json"
	"time"
)

// Type tags an event. The vocabulary is open: unknown types are carried and
// replayed verbatim.
type Type string

const (
	PlayerJoined Type = "player.joined"
	PlayerLeft   Type = "player.left"
	RoomClosed   Type = "room.closed"
	MessageSent  Type = "message.sent"

	GameStart        Type = "game.start"
	GameReset        Type = "game.reset"
	GamePlayerAction Type = "game.player_action"
	GameStateUpdate  Type = "game.state_update"
	GamePlayerInit   Type = "game.player_init"
)

// Event is an immutable, sequenced fact in a room's log. An event with a
// TargetID is addressed to exactly one recipient.
type Event struct {
	Seq       uint64          `json:"seq"`
	RoomID    string          `json:"room_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"ts"`
	ActorID   string          `json:"actor_id,omitempty"`
	TargetID  string          `json:"target_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Directed reports whether the event has a single intended recipient.
func (e Event) Directed() bool {
	return e.TargetID != ""
}

// VisibleTo reports whether viewerID may see the event: every untargeted
// event, plus directed events addressed to viewerID.
func (e Event) VisibleTo(viewerID string) bool {
	return e.TargetID == "" || e.TargetID == viewerID
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// Payloads for the room vocabulary.

type PlayerJoinedData struct {
	ID       string `json:"id"`
	UserName string `json:"user_name"`
	Role     string `json:"role"`
}

type PlayerLeftData struct {
	ID string `json:"id"`
}

type MessageSentData struct {
	SenderID string `json:"sender_id"`
	Value    string `json:"value"`
}
