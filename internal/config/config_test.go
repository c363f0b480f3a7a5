package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3*time.Second, cfg.Stream.ReconnectInterval())
	assert.Equal(t, 30*time.Second, cfg.Stream.PingInterval())
	assert.Equal(t, time.Second, cfg.Stream.ReconnectDelay())
	assert.Zero(t, cfg.Stream.PongTimeout())
	assert.True(t, cfg.Notifications.Enabled)
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := writeFile(t, `
[stream]
url = "wss://tracker.example.com/ws"
project = "alpha"
driver = "coder"
reconnect_attempts = 2

[notifications]
enabled = false

[logging]
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://tracker.example.com/ws", cfg.Stream.URL)
	assert.Equal(t, "alpha", cfg.Stream.Project)
	assert.Equal(t, DriverCoder, cfg.Stream.Driver)
	assert.Equal(t, 2, cfg.Stream.ReconnectAttempts)
	assert.Equal(t, 3000, cfg.Stream.ReconnectIntervalMS, "omitted keys keep defaults")
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_BadTOML(t *testing.T) {
	_, err := Load(writeFile(t, "[stream\nurl="))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"stream url scheme":  func(c *Config) { c.Stream.URL = "ftp://h/ws" },
		"stream url empty":   func(c *Config) { c.Stream.URL = "" },
		"api url":            func(c *Config) { c.API.BaseURL = "ws://h" },
		"driver":             func(c *Config) { c.Stream.Driver = "nhooyr" },
		"attempts":           func(c *Config) { c.Stream.ReconnectAttempts = -1 },
		"reconnect interval": func(c *Config) { c.Stream.ReconnectIntervalMS = 0 },
		"ping interval":      func(c *Config) { c.Stream.PingIntervalMS = 0 },
		"pong timeout":       func(c *Config) { c.Stream.PongTimeoutMS = -5 },
		"api timeout":        func(c *Config) { c.API.TimeoutSeconds = 0 },
		"log format":         func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestReconnectAttemptsOption(t *testing.T) {
	assert.Equal(t, -1, StreamConfig{}.ReconnectAttemptsOption())
	assert.Equal(t, 4, StreamConfig{ReconnectAttempts: 4}.ReconnectAttemptsOption())
}
