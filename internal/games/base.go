package games

import (
	"context"
	"encoding/json"
	"fmt"
	"roomsync/internal/events"
)

// Base implements the roster and state-broadcast half of Game. Concrete games
// embed it and add Metadata and Handle.
type Base[S Stater] struct {
	RoomID string
	Log    Appender
	Spec   PlayerSpec
	State  S

	players []Player
}

func NewBase[S Stater](roomID string, log Appender, spec PlayerSpec, state S) Base[S] {
	return Base[S]{
		RoomID: roomID,
		Log:    log,
		Spec:   spec,
		State:  state,
	}
}

func (b *Base[S]) PlayerSpec() PlayerSpec {
	return b.Spec
}

// Players returns every roster entry ever created, left players included.
func (b *Base[S]) Players() []Player {
	out := make([]Player, len(b.players))
	copy(out, b.players)
	return out
}

// CurrentPlayers returns the roster entries that have not left, in join order.
func (b *Base[S]) CurrentPlayers() []Player {
	out := make([]Player, 0, len(b.players))
	for _, p := range b.players {
		if p.Status != PlayerLeft {
			out = append(out, p)
		}
	}
	return out
}

// Seat returns the 1-based player number of identity among current players,
// or 0 when identity is not seated.
func (b *Base[S]) Seat(identity string) int {
	for i, p := range b.CurrentPlayers() {
		if p.Identity == identity {
			return i + 1
		}
	}
	return 0
}

// Joinable reports whether AddPlayer would accept a new player now.
func (b *Base[S]) Joinable() error {
	if !b.State.Base().Status.CanBeStarted() {
		return Errorf(StateIncompatibility, "Cannot join a game that has already started.")
	}
	if len(b.CurrentPlayers()) >= b.Spec.Max {
		return Errorf(RoomFull, "The game already has %d players.", b.Spec.Max)
	}
	return nil
}

// AddPlayer seats identity. Reaching the minimum player count flips
// can_start and broadcasts the state so waiting clients see it.
func (b *Base[S]) AddPlayer(ctx context.Context, identity string) (Player, error) {
	if err := b.Joinable(); err != nil {
		return Player{}, err
	}
	st := b.State.Base()
	current := len(b.CurrentPlayers())

	p := Player{ID: len(b.players), Identity: identity, Status: PlayerJoined}
	b.players = append(b.players, p)

	if current+1 >= b.Spec.Min && !st.CanStart {
		st.CanStart = true
		if err := b.BroadcastState(ctx, ""); err != nil {
			return p, err
		}
	}
	return p, nil
}

// SetPlayerStatus records a roster change. Dropping below the minimum before
// the game starts withdraws can_start.
func (b *Base[S]) SetPlayerStatus(ctx context.Context, identity string, status PlayerStatus) error {
	idx := -1
	for i := range b.players {
		if b.players[i].Identity == identity && b.players[i].Status != PlayerLeft {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Errorf(WrongPlayer, "Player %s is not part of this game.", identity)
	}
	b.players[idx].Status = status

	st := b.State.Base()
	if st.Status.CanBeStarted() && st.CanStart && len(b.CurrentPlayers()) < b.Spec.Min {
		st.CanStart = false
		return b.BroadcastState(ctx, "")
	}
	return nil
}

// StateJSON returns a full serialized copy of the current state.
func (b *Base[S]) StateJSON() (json.RawMessage, error) {
	data, err := json.Marshal(b.State)
	if err != nil {
		return nil, fmt.Errorf("marshal game state: %w", err)
	}
	return data, nil
}

// BroadcastState appends a state-update event carrying the full state.
func (b *Base[S]) BroadcastState(ctx context.Context, actorID string) error {
	data, err := b.StateJSON()
	if err != nil {
		return err
	}
	if _, err := b.Log.Append(ctx, b.RoomID, events.GameStateUpdate, data, events.WithActor(actorID)); err != nil {
		return fmt.Errorf("broadcast game state: %w", err)
	}
	return nil
}

// Accept records a validated command in the log. Rejected commands are never
// recorded.
func (b *Base[S]) Accept(ctx context.Context, cmd Command, data any) error {
	if _, err := b.Log.Append(ctx, b.RoomID, cmd.EventType(), data, events.WithActor(cmd.Actor())); err != nil {
		return fmt.Errorf("record %s: %w", cmd.EventType(), err)
	}
	return nil
}

// SendPrivate appends a directed event for a single player.
func (b *Base[S]) SendPrivate(ctx context.Context, actorID, targetID string, data any) error {
	_, err := b.Log.Append(ctx, b.RoomID, events.GamePlayerInit, data,
		events.WithActor(actorID), events.WithTarget(targetID))
	return err
}
