package config

import (
	"os"
	"testing"
	"time"
)

var keys = []string{
	"PORT", "DATABASE_URL", "JWT_SECRET_KEY", "LOG_LEVEL", "PING_INTERVAL",
	"PONG_TIMEOUT", "SUBSCRIBER_QUEUE_SIZE", "ROOM_TTL", "TOKEN_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "")
	}
	if cfg.JWTSecret != "dev-secret" {
		t.Errorf("JWTSecret = %q, want %q", cfg.JWTSecret, "dev-secret")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %s, want %s", cfg.PingInterval, 15*time.Second)
	}
	if cfg.PongTimeout != 45*time.Second {
		t.Errorf("PongTimeout = %s, want %s", cfg.PongTimeout, 45*time.Second)
	}
	if cfg.QueueSize != 256 {
		t.Errorf("QueueSize = %d, want %d", cfg.QueueSize, 256)
	}
	if cfg.RoomTTL != 6*time.Hour {
		t.Errorf("RoomTTL = %s, want %s", cfg.RoomTTL, 6*time.Hour)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %s, want %s", cfg.TokenTTL, 24*time.Hour)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "postgres://localhost/roomsync")
	t.Setenv("PING_INTERVAL", "5s")
	t.Setenv("SUBSCRIBER_QUEUE_SIZE", "32")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Port = %q, want %q", cfg.Port, "3000")
	}
	if cfg.DatabaseURL != "postgres://localhost/roomsync" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "postgres://localhost/roomsync")
	}
	if cfg.PingInterval != 5*time.Second {
		t.Errorf("PingInterval = %s, want %s", cfg.PingInterval, 5*time.Second)
	}
	if cfg.QueueSize != 32 {
		t.Errorf("QueueSize = %d, want %d", cfg.QueueSize, 32)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"SUBSCRIBER_QUEUE_SIZE": "abc",
		"PING_INTERVAL":         "soon",
		"ROOM_TTL":              "forever",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q should fail", key, value)
			}
		})
	}
}

func TestLoad_NonPositiveQueue(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUBSCRIBER_QUEUE_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Error("Load() with zero queue size should fail")
	}
}
