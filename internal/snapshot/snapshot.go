// Package snapshot folds a room's event history into a point-in-time view.
package snapshot

import (
	"encoding/json"
	"log/slog"
	"roomsync/internal/events"
	"sort"
)

type RoomStatus string

const (
	StatusWaitingForPlayers RoomStatus = "waiting_for_players"
	StatusWaitingForStart   RoomStatus = "waiting_for_start"
	StatusInProgress        RoomStatus = "in_progress"
	StatusClosed            RoomStatus = "closed"
)

type ConnectionStatus string

const (
	Connected    ConnectionStatus = "connected"
	Disconnected ConnectionStatus = "disconnected"
)

type PlayerView struct {
	ID               string           `json:"id"`
	DisplayName      string           `json:"display_name"`
	Role             string           `json:"role"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
}

type ChatMessage struct {
	Type     string `json:"type"`
	SenderID string `json:"sender_id"`
	Value    string `json:"value"`
}

// RoomView is derived state only; it is rebuilt from the log, never edited.
type RoomView struct {
	RoomID            string          `json:"room_id"`
	Status            RoomStatus      `json:"status"`
	Players           []PlayerView    `json:"players"`
	ChatMessages      []ChatMessage   `json:"chat_messages"`
	PlayerPrivateData json.RawMessage `json:"player_private_data,omitempty"`
	GameState         json.RawMessage `json:"game_state,omitempty"`
}

// gameStatus is the engine-agnostic part of every game state payload.
type gameStatus struct {
	CanStart bool   `json:"can_start"`
	Status   string `json:"status"`
}

// Projector is stateless; one value can serve every room concurrently.
type Projector struct{}

func NewProjector() *Projector {
	return &Projector{}
}

// Build folds events in ascending seq order. viewerID selects which directed
// player-init payload, if any, lands in PlayerPrivateData.
func (p *Projector) Build(roomID string, evs []events.Event, viewerID string) RoomView {
	ordered := evs
	if !sort.SliceIsSorted(evs, func(i, j int) bool { return evs[i].Seq < evs[j].Seq }) {
		ordered = make([]events.Event, len(evs))
		copy(ordered, evs)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })
	}

	view := RoomView{
		RoomID:       roomID,
		Status:       StatusWaitingForPlayers,
		Players:      []PlayerView{},
		ChatMessages: []ChatMessage{},
	}
	for _, ev := range ordered {
		apply(&view, ev, viewerID)
	}
	return view
}

func apply(view *RoomView, ev events.Event, viewerID string) {
	switch ev.Type {
	case events.PlayerJoined:
		var data events.PlayerJoinedData
		if !decode(ev, &data) {
			return
		}
		view.Players = append(view.Players, PlayerView{
			ID:               data.ID,
			DisplayName:      data.UserName,
			Role:             data.Role,
			ConnectionStatus: Connected,
		})

	case events.PlayerLeft:
		var data events.PlayerLeftData
		if !decode(ev, &data) {
			return
		}
		for i := range view.Players {
			if view.Players[i].ID == data.ID {
				view.Players[i].ConnectionStatus = Disconnected
			}
		}

	case events.RoomClosed:
		view.Status = StatusClosed

	case events.MessageSent:
		var data events.MessageSentData
		if !decode(ev, &data) {
			return
		}
		view.ChatMessages = append(view.ChatMessages, ChatMessage{
			Type:     "text",
			SenderID: data.SenderID,
			Value:    data.Value,
		})

	case events.GameStart:
		if view.Status != StatusClosed {
			view.Status = StatusInProgress
		}

	case events.GameStateUpdate:
		view.GameState = ev.Data
		if view.Status == StatusClosed {
			return
		}
		var st gameStatus
		if !decode(ev, &st) {
			return
		}
		switch st.Status {
		case "ongoing":
			view.Status = StatusInProgress
		case "not_started":
			if st.CanStart {
				view.Status = StatusWaitingForStart
			} else {
				view.Status = StatusWaitingForPlayers
			}
		}

	case events.GamePlayerInit:
		if ev.TargetID != "" && ev.TargetID == viewerID {
			view.PlayerPrivateData = ev.Data
		}

	case events.GameReset, events.GamePlayerAction:
		// accepted commands; their effect arrives as a state update

	default:
		slog.Warn("ignoring unknown event type", "component", "snapshot",
			"room_id", ev.RoomID, "seq", ev.Seq, "type", ev.Type)
	}
}

func decode(ev events.Event, v any) bool {
	if err := ev.Decode(v); err != nil {
		slog.Warn("skipping malformed event", "component", "snapshot",
			"room_id", ev.RoomID, "seq", ev.Seq, "type", ev.Type, "error", err)
		return false
	}
	return true
}
