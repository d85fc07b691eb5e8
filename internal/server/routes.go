package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"roomsync/internal/config"
	"roomsync/internal/db"
	"time"
)

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config) error {
	// Optional database connection
	var database *db.DB
	if cfg.DatabaseURL != "" {
		conn, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			slog.Warn("database unavailable, running without it", "component", "server", "error", err)
		} else if err := conn.Migrate(); err != nil {
			slog.Warn("migration failed, running without database", "component", "server", "error", err)
			conn.Close()
		} else {
			database = conn
			defer database.Close()
		}
	} else {
		slog.Info("DATABASE_URL not set, running without database", "component", "server")
	}

	srv := New(cfg, database)
	httpSrv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// websocket sessions end with ctx; Shutdown does not reach hijacked conns
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "component", "server", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listening: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down", "component", "server")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
