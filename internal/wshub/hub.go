// Package wshub runs the websocket sync session for each connected client:
// snapshot on connect, catch-up from a known sequence number, live event
// forwarding, and dispatch of client messages into the room.
package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"roomsync/internal/broadcast"
	"roomsync/internal/events"
	"roomsync/internal/games"
	"roomsync/internal/metrics"
	"roomsync/internal/snapshot"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const sendBuffer = 64

var errPeerTimeout = errors.New("peer stopped responding")

// Log is the slice of the event log a session reads and writes.
type Log interface {
	Append(ctx context.Context, roomID string, eventType events.Type, data any, opts ...events.AppendOption) (events.Event, error)
	Tail(roomID string, limit int) ([]events.Event, uint64)
	ReadAfter(roomID string, afterSeq uint64, limit int) ([]events.Event, uint64)
}

// Room runs fn against the room's game inside the room's exclusive section.
type Room interface {
	WithGame(fn func(games.Game) error) error
}

// Client represents a single WebSocket connection in the hub.
type Client struct {
	RoomID   string
	PlayerID string
	Conn     *websocket.Conn
	Send     chan []byte

	lastSeen atomic.Int64
}

// WritePump reads from the Send channel and writes to the WebSocket
// connection. It is the only writer on Conn.
func (c *Client) WritePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.Send:
			if err := c.Conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return fmt.Errorf("writing message: %w", err)
			}
		}
	}
}

func (c *Client) enqueue(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	select {
	case c.Send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) touch(t time.Time) {
	c.lastSeen.Store(t.UnixNano())
}

func (c *Client) idleSince(t time.Time) time.Duration {
	return t.Sub(time.Unix(0, c.lastSeen.Load()))
}

type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// Hub wires admitted connections to the room's log, bus and projector.
type Hub struct {
	log          Log
	bus          *broadcast.Bus
	projector    *snapshot.Projector
	registry     *Registry
	metrics      *metrics.Metrics
	pingInterval time.Duration
	pongTimeout  time.Duration
}

func NewHub(log Log, bus *broadcast.Bus, projector *snapshot.Projector, registry *Registry, m *metrics.Metrics, opts Options) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 3 * opts.PingInterval
	}
	return &Hub{
		log:          log,
		bus:          bus,
		projector:    projector,
		registry:     registry,
		metrics:      m,
		pingInterval: opts.PingInterval,
		pongTimeout:  opts.PongTimeout,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Serve runs the session for one admitted connection until the peer goes away
// or ctx ends. When lastSeq is non-nil the client also receives every event
// after it that it is allowed to see. Cleanup runs on every exit path.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, room Room, roomID, playerID string, lastSeq *uint64) error {
	c := &Client{
		RoomID:   roomID,
		PlayerID: playerID,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
	}
	c.touch(time.Now())

	// Subscribe before reading the log so nothing appended in between is lost.
	sub := h.bus.Subscribe(roomID, playerID)
	defer sub.Close()
	h.registry.Connect(c)
	defer h.registry.Disconnect(c)

	history, last := h.log.Tail(roomID, 0)
	view := h.projector.Build(roomID, history, playerID)

	logger := slog.With("component", "wshub", "room_id", roomID, "player_id", playerID)
	logger.Info("client connected", "last_seq", last)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.WritePump(gctx)
	})
	g.Go(func() error {
		if err := c.enqueue(gctx, SnapshotMessage{Type: TypeSnapshot, LastSeq: last, Data: view}); err != nil {
			return err
		}
		if lastSeq != nil && *lastSeq < last {
			missed, _ := h.log.ReadAfter(roomID, *lastSeq, 0)
			for _, ev := range missed {
				if ev.Seq > last {
					break
				}
				if !ev.VisibleTo(playerID) {
					continue
				}
				if err := c.enqueue(gctx, EventMessage{Type: TypeEvent, Seq: ev.Seq, Event: ev}); err != nil {
					return err
				}
			}
		}
		return h.forward(gctx, c, sub, last)
	})
	g.Go(func() error {
		return h.keepAlive(gctx, c)
	})
	g.Go(func() error {
		return h.readLoop(gctx, c, room, logger)
	})

	err := g.Wait()
	switch {
	case errors.Is(err, broadcast.ErrSlowConsumer):
		logger.Warn("client fell behind, closing")
		conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
	case errors.Is(err, errPeerTimeout):
		logger.Info("client timed out")
		conn.Close(websocket.StatusPolicyViolation, "ping timeout")
	default:
		conn.CloseNow()
	}
	logger.Info("client disconnected")

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// forward relays live events. Events at or below cursor were already covered
// by the snapshot or catch-up and are skipped.
func (h *Hub) forward(ctx context.Context, c *Client, sub *broadcast.Subscription, cursor uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return errors.New("subscription closed")
			}
			if ev.Seq <= cursor {
				continue
			}
			cursor = ev.Seq
			if err := c.enqueue(ctx, EventMessage{Type: TypeEvent, Seq: ev.Seq, Event: ev}); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) keepAlive(ctx context.Context, c *Client) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			if c.idleSince(t) > h.pongTimeout {
				return errPeerTimeout
			}
			if err := c.enqueue(ctx, PingMessage{Type: TypePing, Timestamp: t.UnixMilli()}); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *Client, room Room, logger *slog.Logger) error {
	for {
		typ, data, err := c.Conn.Read(ctx)
		if err != nil {
			return err
		}
		c.touch(time.Now())
		if typ != websocket.MessageText {
			data = nil
		}
		if err := h.handle(ctx, c, room, data, logger); err != nil {
			return err
		}
	}
}

// handle processes one client message. Rejections are reported to the client
// and never end the session; only a failure to enqueue the reply does.
func (h *Hub) handle(ctx context.Context, c *Client, room Room, data []byte, logger *slog.Logger) error {
	msg, err := DecodeClientMessage(data)
	if err == nil {
		h.metrics.ClientMessage(msg.Type)
		err = h.dispatch(ctx, c, room, msg)
	}
	if err != nil {
		reply := h.errorFor(err, msg, logger)
		h.metrics.ClientMessageFailed(reply.Code)
		if msg.EventKey != "" {
			return c.enqueue(ctx, ResponseMessage{Type: TypeResponse, EventKey: msg.EventKey, Success: false, Error: &reply})
		}
		return c.enqueue(ctx, reply)
	}
	if msg.EventKey != "" {
		return c.enqueue(ctx, ResponseMessage{Type: TypeResponse, EventKey: msg.EventKey, Success: true})
	}
	return nil
}

func (h *Hub) dispatch(ctx context.Context, c *Client, room Room, msg ClientMessage) error {
	switch msg.Type {
	case TypePing:
		return c.enqueue(ctx, PingMessage{Type: TypePing, Timestamp: time.Now().UnixMilli()})
	case TypeChatMessage:
		_, err := h.log.Append(ctx, c.RoomID, events.MessageSent,
			events.MessageSentData{SenderID: c.PlayerID, Value: msg.Text}, events.WithActor(c.PlayerID))
		return err
	case TypeGameStart:
		return runGame(ctx, room, games.Start{ActorID: c.PlayerID})
	case TypeGameReset:
		return runGame(ctx, room, games.Reset{ActorID: c.PlayerID})
	case TypeAction:
		return runGame(ctx, room, games.Action{ActorID: c.PlayerID, Data: msg.Data})
	default:
		return &ProtocolError{Code: CodeUnknownType, Message: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

func runGame(ctx context.Context, room Room, cmd games.Command) error {
	return room.WithGame(func(g games.Game) error {
		return g.Handle(ctx, cmd)
	})
}

// errorFor maps a handling failure to its client-facing shape. Anything that
// is neither a protocol nor a game error is logged and reported as internal.
func (h *Hub) errorFor(err error, msg ClientMessage, logger *slog.Logger) ErrorMessage {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return ErrorMessage{Type: TypeError, Code: perr.Code, Message: perr.Message}
	}
	var gerr *games.Error
	if errors.As(err, &gerr) {
		return ErrorMessage{Type: TypeError, Code: string(gerr.Kind), Message: gerr.Message}
	}
	logger.Error("handling client message", "type", msg.Type, "event_key", msg.EventKey, "error", err)
	return ErrorMessage{Type: TypeError, Code: CodeInternal, Message: "internal error"}
}
