// Package config holds the runtime settings of the game server.
// Values come from defaults, then an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds tuned parameters for the server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Hub     HubConfig     `yaml:"hub"`
	Game    GameConfig    `yaml:"game"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the event ledger backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres or none
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection string for postgres
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HubConfig sizes the WebSocket fan-out.
type HubConfig struct {
	ClientSendBuffer   int           `yaml:"client_send_buffer"`
	BroadcastBuffer    int           `yaml:"broadcast_buffer"`
	MinActionInterval  time.Duration `yaml:"min_action_interval"`
	EventPollInterval  time.Duration `yaml:"event_poll_interval"`
	BroadcastRawEvents bool          `yaml:"broadcast_raw_events"`
}

// GameConfig controls the session runner. The rules and the one second
// tick are fixed.
type GameConfig struct {
	Seed      *int64 `yaml:"seed"` // unset picks a random seed
	Autostart bool   `yaml:"autostart"`
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "data/sleep.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Hub: HubConfig{
			ClientSendBuffer:   64,
			BroadcastBuffer:    256,
			MinActionInterval:  100 * time.Millisecond,
			EventPollInterval:  200 * time.Millisecond,
			BroadcastRawEvents: true,
		},
	}
}

// LowResourceConfig returns minimal settings for development: no ledger,
// debug logs and small buffers.
func LowResourceConfig() *Config {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "none"
	cfg.Storage.DSN = ""
	cfg.Log.Level = "debug"
	cfg.Hub.ClientSendBuffer = 8
	cfg.Hub.BroadcastBuffer = 16
	cfg.Hub.BroadcastRawEvents = false
	return cfg
}

// Load builds a Config from defaults, the YAML file at path (if any) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadOver(DefaultConfig(), path)
}

// LoadOver is Load starting from base instead of the production defaults.
func LoadOver(base *Config, path string) (*Config, error) {
	cfg := base

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnv("SLEEP_ADDR", c.Server.Addr)
	c.Storage.Driver = getEnv("SLEEP_DB_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getEnv("SLEEP_DB_DSN", c.Storage.DSN)
	c.Log.Level = getEnv("SLEEP_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("SLEEP_LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("SLEEP_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SLEEP_SEED %q: %w", v, err)
		}
		c.Game.Seed = &seed
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	switch c.Storage.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Hub.ClientSendBuffer <= 0 || c.Hub.BroadcastBuffer <= 0 {
		errs = append(errs, errors.New("hub buffers must be positive"))
	}
	if c.Hub.EventPollInterval <= 0 {
		errs = append(errs, errors.New("hub.event_poll_interval must be positive"))
	}

	return errors.Join(errs...)
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
