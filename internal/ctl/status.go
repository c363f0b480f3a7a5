package ctl

import (
	"context"
	"fmt"
	"time"

	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/views"
)

// StatusOptions controls the status command.
type StatusOptions struct {
	// Listen keeps the connection open this long before reporting, so
	// that the summary includes traffic.
	Listen time.Duration
}

// StatusReport is the JSON shape of the status command.
type StatusReport struct {
	URL              string `json:"url"`
	Status           string `json:"status"`
	Project          string `json:"project,omitempty"`
	User             string `json:"user,omitempty"`
	ServerMessage    string `json:"server_message,omitempty"`
	ConnectedAt      string `json:"connected_at,omitempty"`
	ConnectionCount  int    `json:"connection_count"`
	MessagesReceived int    `json:"messages_received"`
	TasksSeen        int    `json:"tasks_started"`
	UptimeSeconds    int    `json:"uptime_seconds"`
}

// Status connects to the notification stream and prints a summary of the
// connection the server granted.
func Status(ctx context.Context, env *Env, opts StatusOptions) error {
	s, err := openSession(ctx, env, env.Config.API.Timeout())
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Listen > 0 {
		select {
		case <-time.After(opts.Listen):
		case <-ctx.Done():
		}
	}
	s.Flush()

	info := views.Connection(s.Hub)
	rep := StatusReport{
		URL:              env.Config.Stream.URL,
		Status:           string(info.Status),
		ConnectionCount:  info.ConnectionCount,
		MessagesReceived: info.MessagesReceived,
		TasksSeen:        len(views.History[protocol.TaskStarted](s.Hub)),
		UptimeSeconds:    info.UptimeSeconds,
	}
	if !info.LastConnectedAt.IsZero() {
		rep.ConnectedAt = info.LastConnectedAt.Format(time.RFC3339)
	}
	if ev, ok := views.Last[protocol.Connection](s.Hub); ok {
		rep.Project = ev.Data.ProjectName
		rep.User = ev.Data.UserID
		rep.ServerMessage = ev.Data.Message
	}

	if env.JSON {
		return printJSON(env.out(), rep)
	}

	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  STREAM STATUS"))
	fmt.Fprintln(w, rule(38))
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Status:"), colorize(statusStyle(info.Status), rep.Status))
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "URL:"), rep.URL)
	if rep.Project != "" {
		fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Project:"), rep.Project)
	}
	if rep.User != "" {
		fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "User:"), rep.User)
	}
	if rep.ServerMessage != "" {
		fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Server:"), rep.ServerMessage)
	}
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Uptime:"), formatDuration(time.Duration(rep.UptimeSeconds)*time.Second))
	fmt.Fprintf(w, "  %-12s %d\n", colorize(dim, "Messages:"), rep.MessagesReceived)
	if opts.Listen > 0 {
		fmt.Fprintf(w, "  %-12s %d\n", colorize(dim, "Started:"), rep.TasksSeen)
	}
	fmt.Fprintln(w)
	return nil
}
