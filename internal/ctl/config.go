package ctl

import (
	"fmt"
	"strings"
)

// Config prints the effective configuration after the file, the stored
// credentials and command-line overrides have been applied. The api key is
// never printed.
func Config(env *Env, path string) error {
	cfg := env.Config
	creds, credErr := env.credentials()
	if creds.Project == "" {
		creds.Project = cfg.Stream.Project
	}

	if env.JSON {
		return printJSON(env.out(), map[string]any{
			"path":        path,
			"config":      cfg,
			"has_api_key": credErr == nil,
		})
	}

	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  CONFIGURATION"))
	fmt.Fprintln(w, rule(50))
	if path != "" {
		fmt.Fprintf(w, "  %s %s\n", colorize(dim, "file:"), path)
	}

	section := func(name string) {
		fmt.Fprintf(w, "\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Fprintf(w, "    %-24s %v\n", colorize(dim, key+":"), val)
	}

	section("stream")
	field("url", cfg.Stream.URL)
	field("api_key", maskKey(creds.APIKey))
	field("project", orDash(creds.Project))
	field("driver", cfg.Stream.Driver)
	field("reconnect_attempts", cfg.Stream.ReconnectAttempts)
	field("reconnect_interval_ms", cfg.Stream.ReconnectIntervalMS)
	field("ping_interval_ms", cfg.Stream.PingIntervalMS)
	field("reconnect_delay_ms", cfg.Stream.ReconnectDelayMS)
	field("pong_timeout_ms", cfg.Stream.PongTimeoutMS)

	section("api")
	field("base_url", cfg.API.BaseURL)
	field("timeout_seconds", cfg.API.TimeoutSeconds)

	section("notifications")
	field("enabled", cfg.Notifications.Enabled)

	section("logging")
	field("level", cfg.Logging.Level)
	field("format", cfg.Logging.Format)

	section("credentials")
	field("path", orDash(env.Store.Path))

	fmt.Fprintln(w)
	return nil
}

// maskKey keeps the last four characters of an api key.
func maskKey(key string) string {
	switch {
	case key == "":
		return "-"
	case len(key) <= 4:
		return strings.Repeat("*", len(key))
	default:
		return strings.Repeat("*", 8) + key[len(key)-4:]
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
