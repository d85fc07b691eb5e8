package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	JWTSecret    string        `env:"JWT_SECRET_KEY" envDefault:"dev-secret"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"15s"`
	PongTimeout  time.Duration `env:"PONG_TIMEOUT" envDefault:"45s"`
	QueueSize    int           `env:"SUBSCRIBER_QUEUE_SIZE" envDefault:"256"`
	RoomTTL      time.Duration `env:"ROOM_TTL" envDefault:"6h"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.QueueSize <= 0 {
		return Config{}, fmt.Errorf("SUBSCRIBER_QUEUE_SIZE must be positive, got %d", cfg.QueueSize)
	}
	if cfg.PingInterval <= 0 {
		return Config{}, fmt.Errorf("PING_INTERVAL must be positive, got %s", cfg.PingInterval)
	}
	return cfg, nil
}
