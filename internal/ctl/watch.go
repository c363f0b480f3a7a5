package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/large-farva/task-tracker/internal/notify"
	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/wsclient"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // message types to show (empty = all)
	JSON   bool     // output raw JSON per message

	// Notify prints task notifications to Alerts as they arrive.
	Notify bool
	Alerts io.Writer
}

// Watch connects to the notification stream and prints every message in a
// human-readable format until ctx is cancelled. Transport failures are
// retried by the manager; a rejected api key ends the watch.
func Watch(ctx context.Context, env *Env, opts WatchOptions) error {
	w := env.out()

	var sink notify.Sink
	if opts.Notify {
		alerts := opts.Alerts
		if alerts == nil {
			alerts = os.Stderr
		}
		sink = notify.NewTerminalSink(alerts)
	}

	authErr := make(chan error, 1)
	stream := env.StreamOptions()
	stream.OnError = func(err error) {
		if errors.Is(err, wsclient.ErrAuthFailed) {
			select {
			case authErr <- err:
			default:
			}
		}
	}

	h, err := env.NewHub(stream, sink, false)
	if err != nil {
		return err
	}

	msgs, stopMsgs := h.Subscribe(256)
	defer stopMsgs()
	states, stopStates := h.SubscribeState(16)
	defer stopStates()

	rctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		<-h.Done()
	}()
	go h.Run(rctx)

	if !opts.JSON {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s %s\n", colorize(dim, "watching"), colorize(dim, env.Config.Stream.URL))
		if len(opts.Filter) > 0 {
			fmt.Fprintf(w, "  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Fprintln(w, rule(50))
		fmt.Fprintln(w)
	}

	// Build a filter set for O(1) lookup.
	filterSet := make(map[protocol.Type]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[protocol.Type(strings.TrimSpace(f))] = true
	}

	r := &eventRenderer{w: w}
	last := wsclient.StatusDisconnected
	for {
		select {
		case <-ctx.Done():
			if !opts.JSON {
				fmt.Fprintln(w)
				fmt.Fprintln(w, colorize(dim, "  disconnecting..."))
			}
			return nil

		case err := <-authErr:
			return err

		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if len(filterSet) > 0 && !filterSet[m.Type] {
				continue
			}
			if opts.JSON {
				fmt.Fprintln(w, string(m.Raw))
				continue
			}
			protocol.Dispatch(m, r.at(m))

		case st, ok := <-states:
			if !ok {
				return nil
			}
			if opts.JSON || st.Status == last {
				continue
			}
			last = st.Status
			renderState(w, st)
		}
	}
}

// renderState prints one line for a change of connection status.
func renderState(w io.Writer, st wsclient.State) {
	line := fmt.Sprintf("  %s %s",
		colorize(dim, time.Now().Format(time.TimeOnly)),
		colorize(statusStyle(st.Status), padRight(strings.ToUpper(string(st.Status)), 12)),
	)
	if st.Error != "" {
		line += "  " + colorize(red, st.Error)
	}
	if st.IsConnected() && st.ConnectionCount > 0 {
		line += "  " + colorize(dim, fmt.Sprintf("%d earlier sessions", st.ConnectionCount))
	}
	fmt.Fprintln(w, line)
}

// eventRenderer prints typed messages in a human-friendly format. Unknown
// types are dumped as indented JSON so nothing is lost.
type eventRenderer struct {
	w  io.Writer
	ts string
}

func (r *eventRenderer) at(m protocol.Message) *eventRenderer {
	r.ts = formatTime(m.Timestamp, time.TimeOnly)
	if r.ts == "-" {
		r.ts = "        "
	}
	return r
}

func (r *eventRenderer) line(label string, style func(string) string, rest string) {
	fmt.Fprintf(r.w, "  %s %s  %s\n", colorize(dim, r.ts), style(padRight(label, 9)), rest)
}

func (r *eventRenderer) Connection(_ protocol.Message, c protocol.Connection) {
	style := green
	if c.Status == protocol.ConnectionError {
		style = red
	}
	rest := c.Message
	if c.ProjectName != "" {
		rest += colorize(dim, "  project "+c.ProjectName)
	}
	r.line(string(c.Status), func(s string) string { return colorize(style, s) }, rest)
}

// Pongs are noisy; show them dimmed.
func (r *eventRenderer) Pong(_ protocol.Message, _ protocol.Pong) {
	fmt.Fprintf(r.w, "  %s %s\n", colorize(dim, r.ts), colorize(dim, "pong"))
}

func (r *eventRenderer) TaskStarted(_ protocol.Message, t protocol.TaskStarted) {
	r.line("STARTED", func(s string) string { return colorize(cyan, s) },
		colorize(bold, t.Title)+colorize(dim, "  "+t.AgentName+" @ "+t.ProjectName))
}

func (r *eventRenderer) TaskStatusUpdated(_ protocol.Message, t protocol.TaskStatusUpdated) {
	rest := fmt.Sprintf("%s  %s %s %s",
		colorize(bold, t.Title),
		colorize(taskStatusStyle(t.OldStatus), t.OldStatus),
		colorize(dim, "->"),
		colorize(taskStatusStyle(t.NewStatus), t.NewStatus),
	)
	if t.Progress != nil {
		pct := int(*t.Progress)
		rest += fmt.Sprintf("  [%s] %3d%%", progressBar(pct, 20), pct)
	}
	r.line("STATUS", func(s string) string { return colorize(blue, s) }, rest)
}

func (r *eventRenderer) TaskFinished(_ protocol.Message, t protocol.TaskFinished) {
	label, style := "DONE", green
	if t.Status == protocol.TaskFailed {
		label, style = "FAILED", red
	}
	rest := colorize(bold, t.Title) + colorize(dim, "  "+formatSeconds(t.DurationSeconds))
	if t.ErrorMessage != "" {
		rest += "  " + colorize(red, t.ErrorMessage)
	}
	r.line(label, func(s string) string { return colorize(style, s) }, rest)
}

func (r *eventRenderer) TaskError(_ protocol.Message, t protocol.TaskError) {
	rest := colorize(bold, t.Title) + ": " + t.ErrorMessage
	if t.ErrorType != "" {
		rest += colorize(dim, "  ("+t.ErrorType+")")
	}
	r.line("ERROR", func(s string) string { return colorize(red, s) }, rest)
}

func (r *eventRenderer) Unknown(m protocol.Message, _ protocol.Unknown) {
	var v any
	if err := json.Unmarshal(m.Raw, &v); err != nil {
		fmt.Fprintf(r.w, "  %s\n", string(m.Raw))
		return
	}
	pretty, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		fmt.Fprintf(r.w, "  %s\n", string(m.Raw))
		return
	}
	fmt.Fprintf(r.w, "  %s\n", string(pretty))
}
