// Package logging builds the zerolog loggers shared by the client packages.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	Level     string
	Format    string // "console" or "json"
	Writer    io.Writer
	Component string
}

// New returns a logger writing to opts.Writer (stderr by default). Console
// format is meant for terminals; anything else writes one JSON object per
// line.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	lg := zerolog.New(w).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
	if c := strings.TrimSpace(opts.Component); c != "" {
		lg = lg.With().Str("component", c).Logger()
	}
	return lg
}

// ParseLevel maps a config level name to a zerolog level, defaulting to
// info for unknown names.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
