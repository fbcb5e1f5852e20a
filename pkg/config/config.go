package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the client settings read from the environment.
type Config struct {
	// APIURL is the base URL of the game REST API.
	APIURL string `env:"CLASH_API_URL" envDefault:"http://localhost:8080/inoka"`
	// WSURL is the URL of the snapshot channel.
	WSURL string `env:"CLASH_WS_URL" envDefault:"ws://localhost:8080/ws"`
	// Token is the bearer token identifying the local player.
	Token string `env:"CLASH_TOKEN"`
	// GameID selects the game to follow. When empty the game is looked up over REST.
	GameID string `env:"CLASH_GAME_ID"`
	// SessionURL selects the durable progress store by scheme
	// (memory, sqlite, postgresql, redis).
	SessionURL string `env:"CLASH_SESSION_URL" envDefault:"sqlite://clash-session.db"`
	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string `env:"CLASH_LOG_LEVEL" envDefault:"info"`

	Timing Timing `envPrefix:"CLASH_"`
}

// Timing controls local presentation delays.
type Timing struct {
	CountdownTicks    int           `env:"COUNTDOWN_TICKS" envDefault:"3"`
	CountdownInterval time.Duration `env:"COUNTDOWN_INTERVAL" envDefault:"1s"`
	TurnDelay         time.Duration `env:"TURN_DELAY" envDefault:"2s"`
	DecisionDelay     time.Duration `env:"DECISION_DELAY" envDefault:"3s"`
	ConcludedDelay    time.Duration `env:"CONCLUDED_DELAY" envDefault:"5s"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
}

// Load reads an optional .env file and parses the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %v", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.Timing.CountdownTicks < 0 {
		return fmt.Errorf("countdown ticks must not be negative: %d", c.Timing.CountdownTicks)
	}
	if c.APIURL == "" {
		return fmt.Errorf("CLASH_API_URL must be set")
	}
	if c.WSURL == "" {
		return fmt.Errorf("CLASH_WS_URL must be set")
	}
	return nil
}
