package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Worker pool (C6).
	Workers          int `env:"WORKERS" envDefault:"5" validate:"min=1,max=200"`
	Prefetch         int `env:"PREFETCH" envDefault:"10" validate:"min=1,max=1000"`
	PollIntervalMS   int `env:"POLL_INTERVAL_MS" envDefault:"1000" validate:"min=50,max=60000"`
	DefaultTimeoutMS int `env:"DEFAULT_TIMEOUT_MS" envDefault:"3000" validate:"min=100,max=3600000"`

	// Scheduler loop (C5).
	SchedulerTickMS int `env:"SCHEDULER_TICK_MS" envDefault:"5000" validate:"min=100,max=60000"`
	InstanceTTLSec  int `env:"INSTANCE_TTL_SEC" envDefault:"30" validate:"min=5,max=3600"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// JWTSecret signs/verifies the HS256 bearer token guarding mutating
	// ingestion routes (job/schedule deletion). Empty disables auth, for
	// local dev only.
	JWTSecret string `env:"JWT_SECRET"`

	OTELEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint string `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
