package games

import (
	"context"
	"errors"
	"roomsync/internal/events"
	"testing"
)

type testState struct {
	State
	Moves int `json:"moves"`
}

type testGame struct {
	Base[*testState]
}

func newTestGame(log Appender, spec PlayerSpec) *testGame {
	return &testGame{Base: NewBase("room", log, spec, &testState{State: State{Status: NotStarted}})}
}

func (g *testGame) Metadata() Metadata {
	return Metadata{DisplayName: "Test Game"}
}

func (g *testGame) Handle(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case Action:
		g.State.Moves++
		return g.BroadcastState(ctx, c.ActorID)
	default:
		return Errorf(UnknownAction, "Event type %s is not handled by the game.", cmd.EventType())
	}
}

var _ Game = (*testGame)(nil)

func TestCurrentPlayersExcludesLeft(t *testing.T) {
	g := newTestGame(events.NewStore(nil, nil), PlayerSpec{Min: 1, Max: 3})
	ctx := context.Background()

	if len(g.CurrentPlayers()) != 0 {
		t.Fatal("new game should have no players")
	}
	g.AddPlayer(ctx, "player1")
	g.AddPlayer(ctx, "player2")
	g.AddPlayer(ctx, "player3")
	if err := g.SetPlayerStatus(ctx, "player2", PlayerConnectionLost); err != nil {
		t.Fatal(err)
	}
	if err := g.SetPlayerStatus(ctx, "player3", PlayerLeft); err != nil {
		t.Fatal(err)
	}

	current := g.CurrentPlayers()
	if len(current) != 2 {
		t.Fatalf("len(CurrentPlayers) = %d, want 2", len(current))
	}
	if current[1].Identity != "player2" || current[1].Status != PlayerConnectionLost {
		t.Errorf("current[1] = %+v", current[1])
	}
	if len(g.Players()) != 3 {
		t.Errorf("len(Players) = %d, want 3 (never deleted)", len(g.Players()))
	}
}

func TestAddPlayerAssignsSequentialIDs(t *testing.T) {
	g := newTestGame(events.NewStore(nil, nil), PlayerSpec{Min: 1, Max: 2})
	ctx := context.Background()

	p1, err := g.AddPlayer(ctx, "player1")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := g.AddPlayer(ctx, "player2")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != (Player{ID: 0, Identity: "player1", Status: PlayerJoined}) {
		t.Errorf("p1 = %+v", p1)
	}
	if p2.ID != 1 {
		t.Errorf("p2.ID = %d, want 1", p2.ID)
	}

	if kind, _ := KindOf(g.Joinable()); kind != RoomFull {
		t.Errorf("Joinable() = %v, want RoomFull", g.Joinable())
	}
	_, err = g.AddPlayer(ctx, "player3")
	if kind, _ := KindOf(err); kind != RoomFull {
		t.Fatalf("err = %v, want RoomFull", err)
	}
	if len(g.Players()) != 2 {
		t.Errorf("rejected join should not create a player")
	}
}

func TestAddPlayerFreesSeatAfterLeave(t *testing.T) {
	g := newTestGame(events.NewStore(nil, nil), PlayerSpec{Min: 2, Max: 2})
	ctx := context.Background()
	g.AddPlayer(ctx, "player1")
	g.AddPlayer(ctx, "player2")
	g.SetPlayerStatus(ctx, "player2", PlayerLeft)

	p, err := g.AddPlayer(ctx, "player3")
	if err != nil {
		t.Fatalf("AddPlayer after leave: %v", err)
	}
	if p.ID != 2 {
		t.Errorf("ID = %d, want 2", p.ID)
	}
}

func TestReachingMinimumBroadcastsOnce(t *testing.T) {
	log := events.NewStore(nil, nil)
	g := newTestGame(log, PlayerSpec{Min: 2, Max: 3})
	ctx := context.Background()

	g.AddPlayer(ctx, "player1")
	if log.LastSeq("room") != 0 {
		t.Fatal("no event expected below the minimum")
	}
	if g.State.CanStart {
		t.Fatal("can_start should be false below the minimum")
	}

	g.AddPlayer(ctx, "player2")
	if !g.State.CanStart {
		t.Fatal("can_start should flip at the minimum")
	}
	evs, last := log.Tail("room", 0)
	if last != 1 || evs[0].Type != events.GameStateUpdate {
		t.Fatalf("expected one state update, got %+v", evs)
	}
	var st testState
	if err := evs[0].Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.CanStart || st.Status != NotStarted {
		t.Errorf("broadcast state = %+v", st)
	}

	g.AddPlayer(ctx, "player3")
	if log.LastSeq("room") != 1 {
		t.Errorf("joining beyond the minimum should not broadcast again")
	}
}

func TestLeavingBelowMinimumWithdrawsCanStart(t *testing.T) {
	log := events.NewStore(nil, nil)
	g := newTestGame(log, PlayerSpec{Min: 2, Max: 2})
	ctx := context.Background()
	g.AddPlayer(ctx, "player1")
	g.AddPlayer(ctx, "player2")

	if err := g.SetPlayerStatus(ctx, "player1", PlayerLeft); err != nil {
		t.Fatal(err)
	}
	if g.State.CanStart {
		t.Error("can_start should be withdrawn")
	}
	if log.LastSeq("room") != 2 {
		t.Errorf("LastSeq = %d, want 2", log.LastSeq("room"))
	}

	err := g.SetPlayerStatus(ctx, "stranger", PlayerLeft)
	if !errors.Is(err, &Error{Kind: WrongPlayer}) {
		t.Errorf("err = %v, want WrongPlayer", err)
	}
}

func TestAddPlayerAfterStartFails(t *testing.T) {
	g := newTestGame(events.NewStore(nil, nil), PlayerSpec{Min: 1, Max: 2})
	g.State.Status = Ongoing

	_, err := g.AddPlayer(context.Background(), "player1")
	if kind, _ := KindOf(err); kind != StateIncompatibility {
		t.Fatalf("err = %v, want StateIncompatibility", err)
	}
}

func TestSeat(t *testing.T) {
	g := newTestGame(events.NewStore(nil, nil), PlayerSpec{Min: 2, Max: 3})
	ctx := context.Background()
	g.AddPlayer(ctx, "a")
	g.AddPlayer(ctx, "b")
	g.AddPlayer(ctx, "c")
	g.SetPlayerStatus(ctx, "a", PlayerLeft)

	if got := g.Seat("b"); got != 1 {
		t.Errorf("Seat(b) = %d, want 1", got)
	}
	if got := g.Seat("c"); got != 2 {
		t.Errorf("Seat(c) = %d, want 2", got)
	}
	if got := g.Seat("a"); got != 0 {
		t.Errorf("Seat(a) = %d, want 0", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	g := newTestGame(events.NewStore(nil, nil), PlayerSpec{Min: 1, Max: 2})
	err := g.Handle(context.Background(), Reset{ActorID: "x"})
	if kind, ok := KindOf(err); !ok || kind != UnknownAction {
		t.Fatalf("err = %v, want UnknownAction", err)
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(
		Entry{Type: "zeta", New: func(roomID string, log Appender) Game { return newTestGame(log, PlayerSpec{Min: 1, Max: 1}) }},
		Entry{Type: "alpha", New: func(roomID string, log Appender) Game { return newTestGame(log, PlayerSpec{Min: 1, Max: 1}) }},
	)

	list := c.List()
	if len(list) != 2 || list[0].Type != "alpha" {
		t.Errorf("List = %+v, want sorted by type", list)
	}
	if _, ok := c.Lookup("alpha"); !ok {
		t.Error("Lookup(alpha) should succeed")
	}
	if _, err := c.New("missing", "room", events.NewStore(nil, nil)); err == nil {
		t.Error("New(missing) should fail")
	}
	g, err := c.New("zeta", "room", events.NewStore(nil, nil))
	if err != nil || g == nil {
		t.Fatalf("New(zeta) = %v, %v", g, err)
	}
}
