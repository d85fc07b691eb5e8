package server

import (
	"context"
	"log/slog"
	"net/http"
	"roomsync/internal/auth"
	"roomsync/internal/broadcast"
	"roomsync/internal/config"
	"roomsync/internal/db"
	"roomsync/internal/events"
	"roomsync/internal/games"
	"roomsync/internal/games/connectfour"
	"roomsync/internal/metrics"
	"roomsync/internal/players"
	"roomsync/internal/rooms"
	"roomsync/internal/snapshot"
	"roomsync/internal/wshub"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Rooms     *rooms.Store
	Players   *players.Store
	Log       *events.Store
	Projector *snapshot.Projector
	Hub       *wshub.Hub
	Catalog   *games.Catalog
	Auth      *auth.Issuer
	Gatherer  prometheus.Gatherer
	DB        *db.DB // nil if no database configured

	tokenTTL int
}

// New wires every store once; handlers and sessions share them.
func New(cfg config.Config, database *db.DB) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	bus := broadcast.NewBus(cfg.QueueSize, m)
	log := events.NewStore(bus, m)
	projector := snapshot.NewProjector()
	catalog := games.NewCatalog(connectfour.CatalogEntry())

	s := &Server{
		Players:   players.NewStore(),
		Log:       log,
		Projector: projector,
		Catalog:   catalog,
		Auth:      auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Gatherer:  reg,
		DB:        database,
		tokenTTL:  int(cfg.TokenTTL.Seconds()),
	}
	s.Rooms = rooms.NewStore(catalog, log, cfg.RoomTTL, rooms.WithOnRemove(s.roomRemoved))
	s.Hub = wshub.NewHub(log, bus, projector, wshub.NewRegistry(m), m, wshub.Options{
		PingInterval: cfg.PingInterval,
		PongTimeout:  cfg.PongTimeout,
	})
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /games", s.handleListGames)
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /rooms", s.handleListRooms)
	mux.HandleFunc("POST /rooms/join", s.handleJoinRoom)
	mux.HandleFunc("POST /rooms/{id}/leave", s.handleLeaveRoom)
	mux.HandleFunc("POST /rooms/{id}/close", s.handleCloseRoom)
	mux.HandleFunc("GET /rooms/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /rooms/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /ws/rooms/{id}", s.handleWebSocket)
	return mux
}

// roomRemoved forgets everything tied to a deleted or expired room.
func (s *Server) roomRemoved(room *rooms.Room) {
	s.Players.RemoveRoom(room.ID)
	if s.DB != nil {
		if err := s.DB.DeleteRoom(room.ID); err != nil {
			slog.Error("deleting room record", "component", "server", "room_id", room.ID, "error", err)
		}
	}
}

// setPlayerStatus records a roster change on the room's game. Players the
// game does not know, and closed rooms, are ignored.
func (s *Server) setPlayerStatus(ctx context.Context, room *rooms.Room, playerID string, status games.PlayerStatus) {
	err := room.WithGame(func(g games.Game) error {
		return g.SetPlayerStatus(ctx, playerID, status)
	})
	if kind, ok := games.KindOf(err); ok && (kind == games.WrongPlayer || kind == games.StateIncompatibility) {
		return
	}
	if err != nil {
		slog.Error("updating player status", "component", "server",
			"room_id", room.ID, "player_id", playerID, "status", status, "error", err)
	}
}
