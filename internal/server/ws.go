package server

import (
	"context"
	"log/slog"
	"net/http"
	"roomsync/internal/games"
	"strconv"

	"github.com/coder/websocket"
)

// StatusForbidden closes a websocket whose session cannot be admitted to the
// requested room.
const StatusForbidden websocket.StatusCode = 4403

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	var lastSeq *uint64
	if v := r.URL.Query().Get("last_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "last_seq must be a non-negative integer.")
			return
		}
		lastSeq = &n
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "component", "server", "error", err)
		return
	}

	claims, err := s.identify(r)
	if err != nil || claims.RoomID != roomID {
		conn.Close(StatusForbidden, "forbidden")
		return
	}
	room, err := s.Rooms.Get(roomID)
	if err != nil {
		conn.Close(StatusForbidden, "forbidden")
		return
	}

	ctx := r.Context()
	s.setPlayerStatus(ctx, room, claims.PlayerID, games.PlayerJoined)

	if err := s.Hub.Serve(ctx, conn, room, room.ID, claims.PlayerID, lastSeq); err != nil {
		slog.Debug("session ended", "component", "server", "room_id", room.ID, "player_id", claims.PlayerID, "error", err)
	}

	if !s.Hub.Registry().Connected(room.ID, claims.PlayerID) && s.Players.Get(claims.PlayerID) != nil {
		s.setPlayerStatus(context.WithoutCancel(ctx), room, claims.PlayerID, games.PlayerConnectionLost)
	}
}
