package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"roomsync/internal/auth"
	"roomsync/internal/db"
	"roomsync/internal/events"
	"roomsync/internal/games"
	"roomsync/internal/players"
	"roomsync/internal/rooms"
	"strconv"
	"strings"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "component", "server", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// identify resolves the caller from the session cookie, falling back to the
// Authorization header.
func (s *Server) identify(r *http.Request) (auth.Claims, error) {
	raw := r.Header.Get("Authorization")
	if c, err := r.Cookie(auth.CookieName); err == nil {
		raw = c.Value
	}
	claims, err := s.Auth.Verify(raw)
	if err != nil {
		return auth.Claims{}, err
	}
	if s.Players.Get(claims.PlayerID) == nil {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return claims, nil
}

// requirePlayer resolves the caller and the {id} room and checks they match.
// It writes the failure response itself.
func (s *Server) requirePlayer(w http.ResponseWriter, r *http.Request) (auth.Claims, *rooms.Room, bool) {
	claims, err := s.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "A valid session is required.")
		return auth.Claims{}, nil, false
	}
	roomID := r.PathValue("id")
	if claims.RoomID != roomID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Your session belongs to another room.")
		return auth.Claims{}, nil, false
	}
	room, err := s.Rooms.Get(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found.")
		return auth.Claims{}, nil, false
	}
	return claims, room, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_error", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.List())
}

type createRoomRequest struct {
	GameType string `json:"game_type"`
}

type roomResponse struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	GameType string `json:"game_type"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be a JSON object.")
		return
	}

	room, err := s.Rooms.Create(strings.TrimSpace(req.GameType))
	if errors.Is(err, rooms.ErrUnknownGameType) {
		writeError(w, http.StatusBadRequest, "UNKNOWN_GAME_TYPE", "Unknown game type.")
		return
	}
	if err != nil {
		slog.Error("creating room", "component", "server", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create room.")
		return
	}

	if s.DB != nil {
		if err := s.DB.UpsertRoom(db.RoomRecord{ID: room.ID, Code: room.Code, GameType: room.GameType, CreatedAt: room.CreatedAt}); err != nil {
			slog.Error("recording room", "component", "server", "room_id", room.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, roomResponse{ID: room.ID, Code: room.Code, GameType: room.GameType})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	list := s.Rooms.List()
	out := make([]rooms.Summary, 0, len(list))
	for _, room := range list {
		sum := room.Summary()
		sum.Connections = s.Hub.Registry().Count(room.ID)
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

type joinRequest struct {
	Code     string `json:"code"`
	UserName string `json:"user_name"`
}

type joinResponse struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be a JSON object.")
		return
	}
	name := strings.TrimSpace(req.UserName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "user_name is required.")
		return
	}

	room, err := s.Rooms.GetByCode(req.Code)
	if err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "No room uses that code.")
		return
	}

	ctx := r.Context()
	var player *players.Player
	err = room.WithGame(func(g games.Game) error {
		if err := g.Joinable(); err != nil {
			return err
		}
		player = s.Players.Add(room.ID, name)
		if _, err := s.Log.Append(ctx, room.ID, events.PlayerJoined, events.PlayerJoinedData{
			ID:       player.ID,
			UserName: player.Name,
			Role:     player.Role,
		}, events.WithActor(player.ID)); err != nil {
			s.Players.Remove(player.ID)
			return err
		}
		_, err := g.AddPlayer(ctx, player.ID)
		return err
	})
	if errors.Is(err, rooms.ErrRoomClosed) {
		writeError(w, http.StatusConflict, "ROOM_CLOSED", "The room is closed.")
		return
	}
	var gerr *games.Error
	if errors.As(err, &gerr) {
		writeError(w, http.StatusConflict, string(gerr.Kind), gerr.Message)
		return
	}
	if err != nil {
		slog.Error("joining room", "component", "server", "room_id", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to join room.")
		return
	}

	token, err := s.Auth.Issue(auth.Claims{PlayerID: player.ID, RoomID: room.ID, Name: player.Name, Role: player.Role})
	if err != nil {
		slog.Error("issuing token", "component", "server", "room_id", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to join room.")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   s.tokenTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if s.DB != nil {
		if err := s.DB.AddPlayer(db.PlayerRecord{ID: player.ID, RoomID: room.ID, Name: player.Name, Role: player.Role, JoinedAt: player.JoinedAt}); err != nil {
			slog.Error("recording player", "component", "server", "player_id", player.ID, "error", err)
		}
	}

	slog.Info("player joined", "component", "server", "room_id", room.ID, "player_id", player.ID, "role", player.Role)
	writeJSON(w, http.StatusOK, joinResponse{RoomID: room.ID, PlayerID: player.ID, Role: player.Role, Token: token})
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	claims, room, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := s.Log.Append(ctx, room.ID, events.PlayerLeft, events.PlayerLeftData{ID: claims.PlayerID},
		events.WithActor(claims.PlayerID)); err != nil {
		slog.Error("recording leave", "component", "server", "room_id", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to leave room.")
		return
	}
	s.setPlayerStatus(ctx, room, claims.PlayerID, games.PlayerLeft)
	s.Players.Remove(claims.PlayerID)

	if s.DB != nil {
		if err := s.DB.MarkPlayerLeft(claims.PlayerID); err != nil {
			slog.Error("recording leave", "component", "server", "player_id", claims.PlayerID, "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{Name: auth.CookieName, Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloseRoom(w http.ResponseWriter, r *http.Request) {
	claims, room, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	if claims.Role != players.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the room admin can close the room.")
		return
	}
	if !room.Close() {
		writeError(w, http.StatusConflict, "ROOM_CLOSED", "The room is already closed.")
		return
	}

	if _, err := s.Log.Append(r.Context(), room.ID, events.RoomClosed, nil, events.WithActor(claims.PlayerID)); err != nil {
		slog.Error("recording close", "component", "server", "room_id", room.ID, "error", err)
	}
	if s.DB != nil {
		if err := s.DB.CloseRoom(room.ID); err != nil {
			slog.Error("recording close", "component", "server", "room_id", room.ID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type snapshotResponse struct {
	LastSeq uint64 `json:"last_seq"`
	Data    any    `json:"data"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	claims, room, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	evs, last := s.Log.Tail(room.ID, 0)
	writeJSON(w, http.StatusOK, snapshotResponse{
		LastSeq: last,
		Data:    s.Projector.Build(room.ID, evs, claims.PlayerID),
	})
}

type eventsResponse struct {
	Events  []events.Event `json:"events"`
	LastSeq uint64         `json:"last_seq"`
}

// handleEvents pages through the log. Without after_seq it returns the most
// recent window.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims, room, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := defaultEventsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer.")
			return
		}
		limit = min(n, maxEventsLimit)
	}

	var evs []events.Event
	var last uint64
	if v := q.Get("after_seq"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "after_seq must be a non-negative integer.")
			return
		}
		evs, last = s.Log.ReadAfter(room.ID, after, limit)
	} else {
		evs, last = s.Log.Tail(room.ID, limit)
	}

	visible := make([]events.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.VisibleTo(claims.PlayerID) {
			visible = append(visible, ev)
		}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: visible, LastSeq: last})
}
