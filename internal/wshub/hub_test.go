package wshub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"roomsync/internal/broadcast"
	"roomsync/internal/events"
	"roomsync/internal/games"
	"roomsync/internal/games/connectfour"
	"roomsync/internal/snapshot"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type testRoom struct {
	mu   sync.Mutex
	game games.Game
}

func (r *testRoom) WithGame(fn func(games.Game) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.game)
}

type harness struct {
	log  *events.Store
	bus  *broadcast.Bus
	hub  *Hub
	room *testRoom
	srv  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bus := broadcast.NewBus(64, nil)
	log := events.NewStore(bus, nil)
	h := &harness{
		log:  log,
		bus:  bus,
		room: &testRoom{game: connectfour.New("room", log)},
	}
	h.hub = NewHub(log, bus, snapshot.NewProjector(), NewRegistry(nil), nil, Options{PingInterval: time.Minute})

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		var lastSeq *uint64
		if v := r.URL.Query().Get("last_seq"); v != "" {
			n, _ := strconv.ParseUint(v, 10, 64)
			lastSeq = &n
		}
		h.hub.Serve(r.Context(), conn, h.room, "room", r.URL.Query().Get("player"), lastSeq)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func (h *harness) join(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.log.Append(ctx, "room", events.PlayerJoined,
		events.PlayerJoinedData{ID: id, UserName: strings.ToUpper(id), Role: "player"}); err != nil {
		t.Fatal(err)
	}
	h.room.WithGame(func(g games.Game) error {
		_, err := g.AddPlayer(ctx, id)
		return err
	})
}

type wireMsg struct {
	Type     string            `json:"type"`
	LastSeq  uint64            `json:"last_seq"`
	Seq      uint64            `json:"seq"`
	Data     snapshot.RoomView `json:"data"`
	Event    events.Event      `json:"event"`
	EventKey string            `json:"event_key"`
	Success  bool              `json:"success"`
	Error    *ErrorMessage     `json:"error"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
}

func readMsg(t *testing.T, conn *websocket.Conn) wireMsg {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg wireMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func writeMsg(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	h := newHarness(t)
	h.join(t, "alice")

	conn := h.dial(t, "player=alice")
	msg := readMsg(t, conn)

	if msg.Type != TypeSnapshot {
		t.Fatalf("first message type = %q, want snapshot", msg.Type)
	}
	if msg.LastSeq != 1 {
		t.Errorf("last_seq = %d, want 1", msg.LastSeq)
	}
	if len(msg.Data.Players) != 1 || msg.Data.Players[0].ID != "alice" {
		t.Errorf("players = %+v", msg.Data.Players)
	}
	if msg.Data.Status != snapshot.StatusWaitingForPlayers {
		t.Errorf("status = %q, want %q", msg.Data.Status, snapshot.StatusWaitingForPlayers)
	}
}

func TestReconnectCatchUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 1; i <= 8; i++ {
		h.log.Append(ctx, "room", events.MessageSent, events.MessageSentData{SenderID: "bob", Value: fmt.Sprint(i)})
	}

	conn := h.dial(t, "player=alice&last_seq=5")
	snap := readMsg(t, conn)
	if snap.Type != TypeSnapshot || snap.LastSeq != 8 {
		t.Fatalf("snapshot = %+v", snap)
	}
	for want := uint64(6); want <= 8; want++ {
		msg := readMsg(t, conn)
		if msg.Type != TypeEvent || msg.Seq != want || msg.Event.Seq != want {
			t.Fatalf("got %s seq %d, want event seq %d", msg.Type, msg.Seq, want)
		}
	}

	h.log.Append(ctx, "room", events.MessageSent, events.MessageSentData{SenderID: "bob", Value: "live"})
	msg := readMsg(t, conn)
	if msg.Type != TypeEvent || msg.Seq != 9 {
		t.Fatalf("live event = %s seq %d, want event seq 9", msg.Type, msg.Seq)
	}
}

func TestCatchUpSkipsOthersDirectedEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.log.Append(ctx, "room", events.MessageSent, events.MessageSentData{SenderID: "bob", Value: "one"})
	h.log.Append(ctx, "room", events.GamePlayerInit, map[string]int{"player": 2}, events.WithTarget("bob"))
	h.log.Append(ctx, "room", events.GamePlayerInit, map[string]int{"player": 1}, events.WithTarget("alice"))

	conn := h.dial(t, "player=alice&last_seq=0")
	readMsg(t, conn)

	first := readMsg(t, conn)
	second := readMsg(t, conn)
	if first.Seq != 1 || second.Seq != 3 {
		t.Errorf("catch-up seqs = %d, %d, want 1, 3", first.Seq, second.Seq)
	}
	if second.Event.TargetID != "alice" {
		t.Errorf("second event target = %q, want alice", second.Event.TargetID)
	}
}

func TestChatMessageAcknowledged(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "player=alice")
	readMsg(t, conn)

	writeMsg(t, conn, `{"type":"chat_message","text":"  hello  ","event_key":"k1"}`)

	var gotEvent, gotResponse bool
	for range 2 {
		msg := readMsg(t, conn)
		switch msg.Type {
		case TypeEvent:
			gotEvent = true
			var data events.MessageSentData
			if err := msg.Event.Decode(&data); err != nil {
				t.Fatal(err)
			}
			if data.Value != "hello" || data.SenderID != "alice" {
				t.Errorf("chat data = %+v", data)
			}
		case TypeResponse:
			gotResponse = true
			if msg.EventKey != "k1" || !msg.Success || msg.Error != nil {
				t.Errorf("response = %+v", msg)
			}
		default:
			t.Fatalf("unexpected message %q", msg.Type)
		}
	}
	if !gotEvent || !gotResponse {
		t.Errorf("event = %v, response = %v, want both", gotEvent, gotResponse)
	}
}

func TestInvalidMessageWithoutKey(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "player=alice")
	readMsg(t, conn)

	writeMsg(t, conn, `{"type":"chat_message","text":"   "}`)
	msg := readMsg(t, conn)
	if msg.Type != TypeError || msg.Code != CodeInvalidMessage {
		t.Fatalf("got %+v, want INVALID_MESSAGE error", msg)
	}
	if h.log.LastSeq("room") != 0 {
		t.Error("rejected chat was appended")
	}

	// the session survives the bad message
	writeMsg(t, conn, `{"type":"ping"}`)
	if msg := readMsg(t, conn); msg.Type != TypePing {
		t.Errorf("after error got %q, want ping", msg.Type)
	}
}

func TestUnknownTypeCorrelated(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "player=alice")
	readMsg(t, conn)

	writeMsg(t, conn, `{"type":"dance","event_key":"k9"}`)
	msg := readMsg(t, conn)
	if msg.Type != TypeResponse || msg.EventKey != "k9" || msg.Success {
		t.Fatalf("got %+v, want failed response", msg)
	}
	if msg.Error == nil || msg.Error.Code != CodeUnknownType {
		t.Errorf("error = %+v, want %s", msg.Error, CodeUnknownType)
	}
}

func TestGameErrorReturnedAsResponse(t *testing.T) {
	h := newHarness(t)
	h.join(t, "alice")
	conn := h.dial(t, "player=alice")
	readMsg(t, conn)

	writeMsg(t, conn, `{"type":"game_start","event_key":"start"}`)
	msg := readMsg(t, conn)
	if msg.Type != TypeResponse || msg.Success {
		t.Fatalf("got %+v, want failed response", msg)
	}
	if msg.Error == nil || msg.Error.Code != string(games.WrongPlayerCount) {
		t.Errorf("error = %+v, want %s", msg.Error, games.WrongPlayerCount)
	}
}

func TestGameStartDeliversPrivateSeat(t *testing.T) {
	h := newHarness(t)
	h.join(t, "alice")
	h.join(t, "bob")

	alice := h.dial(t, "player=alice")
	readMsg(t, alice)
	bob := h.dial(t, "player=bob")
	readMsg(t, bob)

	writeMsg(t, alice, `{"type":"game_start"}`)

	// start, state update, init for alice, init for bob
	var inits []events.Event
	for range 3 {
		msg := readMsg(t, bob)
		if msg.Type != TypeEvent {
			t.Fatalf("bob got %q, want event", msg.Type)
		}
		if msg.Event.Type == events.GamePlayerInit {
			inits = append(inits, msg.Event)
		}
	}
	if len(inits) != 1 || inits[0].TargetID != "bob" {
		t.Fatalf("bob init events = %+v, want exactly his own", inits)
	}
}

func TestDisconnectCleansUp(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "player=alice")
	readMsg(t, conn)

	if got := h.hub.Registry().Count("room"); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.After(2 * time.Second)
	for h.hub.Registry().Count("room") != 0 || h.bus.Subscribers("room") != 0 {
		select {
		case <-deadline:
			t.Fatalf("cleanup incomplete: connections %d, subscribers %d",
				h.hub.Registry().Count("room"), h.bus.Subscribers("room"))
		case <-time.After(10 * time.Millisecond):
		}
	}
}
