// Package ctl implements the commands of trackerctl. It talks to the task
// tracker over its REST API and notification stream and renders the
// results to the terminal.
package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/large-farva/task-tracker/internal/wsclient"
)

// Terminal styles. They render as plain text when stdout is not a terminal.
var (
	bold   = lipgloss.NewStyle().Bold(true)
	dim    = lipgloss.NewStyle().Faint(true)
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	blue   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// colorEnabled reports whether stdout is a terminal. When output is piped
// or redirected, styling is suppressed.
func colorEnabled() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// colorize renders text with style, or returns it unchanged when colour
// output is disabled.
func colorize(style lipgloss.Style, text string) string {
	if !colorEnabled() {
		return text
	}
	return style.Render(text)
}

// header returns a bold section header.
func header(title string) string {
	return colorize(bold, title)
}

func rule(width int) string {
	return colorize(dim, "  "+strings.Repeat("─", width))
}

// statusStyle returns the style for a connection status.
func statusStyle(s wsclient.Status) lipgloss.Style {
	switch s {
	case wsclient.StatusConnected:
		return green
	case wsclient.StatusConnecting, wsclient.StatusReconnecting:
		return yellow
	case wsclient.StatusError:
		return red
	default:
		return dim
	}
}

// taskStatusStyle returns the style for a task status from the API.
func taskStatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return green
	case "running":
		return blue
	case "failed":
		return red
	case "pending":
		return yellow
	default:
		return dim
	}
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration renders a duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatSeconds renders an optional duration in seconds.
func formatSeconds(secs *float64) string {
	if secs == nil {
		return "-"
	}
	if *secs < 60 {
		return fmt.Sprintf("%.1fs", *secs)
	}
	return formatDuration(time.Duration(*secs * float64(time.Second)))
}

// formatTime parses a server timestamp and returns local wall-clock time.
func formatTime(ts, layout string) string {
	if ts == "" {
		return "-"
	}
	for _, in := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(in, ts); err == nil {
			return t.Local().Format(layout)
		}
	}
	return ts
}

// progressBar builds a simple ASCII bar of the given width.
func progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	filled := (pct * width) / 100
	if filled > width {
		filled = width
	}
	empty := width - filled
	return colorize(green, strings.Repeat("=", filled)) + strings.Repeat(" ", empty)
}

// tableWriter renders aligned columns under a dim header row.
type tableWriter struct {
	w      io.Writer
	indent string
	t      *table.Table
}

// newTable returns a borderless table. Every rendered line is prefixed
// with indent.
func newTable(w io.Writer, indent string, headers ...string) *tableWriter {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(false).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingRight(2)
			if row == table.HeaderRow && colorEnabled() {
				return s.Faint(true)
			}
			return s
		})
	return &tableWriter{w: w, indent: indent, t: t}
}

func (t *tableWriter) row(cells ...string) {
	t.t.Row(cells...)
}

func (t *tableWriter) flush() {
	for _, line := range strings.Split(t.t.Render(), "\n") {
		fmt.Fprintln(t.w, t.indent+strings.TrimRight(line, " "))
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
