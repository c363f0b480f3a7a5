// Package config handles loading, defaulting, and validation of the
// trackerctl TOML configuration file. Every section maps to a typed struct
// so the rest of the codebase gets strong typing without manual key
// lookups.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Stream        StreamConfig        `toml:"stream"        json:"stream"`
	API           APIConfig           `toml:"api"           json:"api"`
	Notifications NotificationsConfig `toml:"notifications" json:"notifications"`
	Logging       LoggingConfig       `toml:"logging"       json:"logging"`
	Credentials   CredentialsConfig   `toml:"credentials"   json:"credentials"`
}

type StreamConfig struct {
	URL                 string `toml:"url"                   json:"url"`
	APIKey              string `toml:"api_key"               json:"-"`
	Project             string `toml:"project"               json:"project"`
	Driver              string `toml:"driver"                json:"driver"`
	ReconnectAttempts   int    `toml:"reconnect_attempts"    json:"reconnect_attempts"`
	ReconnectIntervalMS int    `toml:"reconnect_interval_ms" json:"reconnect_interval_ms"`
	PingIntervalMS      int    `toml:"ping_interval_ms"      json:"ping_interval_ms"`
	ReconnectDelayMS    int    `toml:"reconnect_delay_ms"    json:"reconnect_delay_ms"`
	PongTimeoutMS       int    `toml:"pong_timeout_ms"       json:"pong_timeout_ms"`
}

type APIConfig struct {
	BaseURL        string `toml:"base_url"        json:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
}

type NotificationsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  json:"level"`
	Format string `toml:"format" json:"format"`
}

type CredentialsConfig struct {
	Path string `toml:"path" json:"path"`
}

// Supported stream drivers.
const (
	DriverGorilla = "gorilla"
	DriverCoder   = "coder"
)

// Default returns a Config populated with defaults that match a local
// development server. Values here are used whenever the TOML file omits a
// field.
func Default() Config {
	return Config{
		Stream: StreamConfig{
			URL:                 "ws://localhost:8002/ws",
			Driver:              DriverGorilla,
			ReconnectAttempts:   5,
			ReconnectIntervalMS: 3000,
			PingIntervalMS:      30000,
			ReconnectDelayMS:    1000,
		},
		API: APIConfig{
			BaseURL:        "http://localhost:8002",
			TimeoutSeconds: 10,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath is where trackerctl looks for its config file when none is
// given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "trackerctl.toml"
	}
	return filepath.Join(dir, "task-tracker", "config.toml")
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An empty path yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every constraint. Call it again after applying
// overrides.
func (cfg Config) Validate() error {
	if err := checkURL("stream.url", cfg.Stream.URL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if err := checkURL("api.base_url", cfg.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	switch cfg.Stream.Driver {
	case DriverGorilla, DriverCoder:
	default:
		return fmt.Errorf("stream.driver must be %q or %q", DriverGorilla, DriverCoder)
	}
	if cfg.Stream.ReconnectAttempts < 0 {
		return errors.New("stream.reconnect_attempts must be >= 0")
	}
	if cfg.Stream.ReconnectIntervalMS < 1 {
		return errors.New("stream.reconnect_interval_ms must be >= 1")
	}
	if cfg.Stream.PingIntervalMS < 1 {
		return errors.New("stream.ping_interval_ms must be >= 1")
	}
	if cfg.Stream.ReconnectDelayMS < 0 {
		return errors.New("stream.reconnect_delay_ms must be >= 0")
	}
	if cfg.Stream.PongTimeoutMS < 0 {
		return errors.New("stream.pong_timeout_ms must be >= 0")
	}
	if cfg.API.TimeoutSeconds < 1 {
		return errors.New("api.timeout_seconds must be >= 1")
	}
	switch cfg.Logging.Format {
	case "console", "json":
	default:
		return errors.New(`logging.format must be "console" or "json"`)
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v URL", field, schemes)
}

// ReconnectAttemptsOption converts the file value for wsclient.Options. A
// zero in the file disables reconnection; the manager spells that -1.
func (s StreamConfig) ReconnectAttemptsOption() int {
	if s.ReconnectAttempts == 0 {
		return -1
	}
	return s.ReconnectAttempts
}

func (s StreamConfig) ReconnectInterval() time.Duration {
	return time.Duration(s.ReconnectIntervalMS) * time.Millisecond
}

func (s StreamConfig) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalMS) * time.Millisecond
}

func (s StreamConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMS) * time.Millisecond
}

func (s StreamConfig) PongTimeout() time.Duration {
	return time.Duration(s.PongTimeoutMS) * time.Millisecond
}

func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}
