// Package notify turns task lifecycle messages into user-facing
// notifications. Delivery is best effort: a sink never reports failure
// and nothing is retried.
package notify

import (
	"fmt"
	"time"

	"github.com/large-farva/task-tracker/internal/protocol"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one message for the user. TTL is how long a transient
// display should keep it visible.
type Notification struct {
	Level Level
	Icon  string
	Title string
	Body  string
	TTL   time.Duration
	At    time.Time
}

// Sink delivers notifications. Notify must not block for long; it runs on
// the connection loop.
type Sink interface {
	Notify(Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

func (f SinkFunc) Notify(n Notification) { f(n) }

// For maps a message to its notification. Messages that are not task
// lifecycle events map to nothing.
func For(m protocol.Message) (Notification, bool) {
	var n Notification
	switch p := m.Data.(type) {
	case protocol.TaskStarted:
		n = Notification{
			Level: LevelInfo,
			Icon:  "🚀",
			Title: fmt.Sprintf("Task %q started", p.Title),
			Body:  agentLine(p.AgentName, p.ProjectName),
			TTL:   4 * time.Second,
		}
	case protocol.TaskFinished:
		if p.Status == protocol.TaskCompleted {
			n = Notification{
				Level: LevelSuccess,
				Icon:  "✅",
				Title: fmt.Sprintf("Task %q completed successfully", p.Title),
				TTL:   6 * time.Second,
			}
		} else {
			n = Notification{
				Level: LevelError,
				Icon:  "❌",
				Title: fmt.Sprintf("Task %q failed", p.Title),
				Body:  p.ErrorMessage,
				TTL:   6 * time.Second,
			}
		}
		if p.DurationSeconds != nil && n.Body == "" {
			n.Body = fmt.Sprintf("took %.1fs", *p.DurationSeconds)
		}
	case protocol.TaskStatusUpdated:
		n = Notification{
			Level: LevelInfo,
			Icon:  "🔄",
			Title: fmt.Sprintf("Task %q status changed from %q to %q", p.Title, p.OldStatus, p.NewStatus),
			TTL:   4 * time.Second,
		}
		if p.Progress != nil {
			n.Body = fmt.Sprintf("%.0f%% done", *p.Progress)
		}
	case protocol.TaskError:
		n = Notification{
			Level: LevelError,
			Icon:  "⚠️",
			Title: fmt.Sprintf("Error in task %q: %s", p.Title, p.ErrorMessage),
			Body:  p.ErrorType,
			TTL:   8 * time.Second,
		}
	default:
		return Notification{}, false
	}
	return n, true
}

func agentLine(agent, project string) string {
	switch {
	case agent != "" && project != "":
		return agent + " in " + project
	case agent != "":
		return agent
	default:
		return project
	}
}

// Dispatcher forwards task notifications to a Sink. It implements
// protocol.Handler so it can be passed straight to protocol.Dispatch.
type Dispatcher struct {
	protocol.NopHandler
	Sink Sink
	Now  func() time.Time
}

// NewDispatcher returns a dispatcher delivering to s.
func NewDispatcher(s Sink) *Dispatcher {
	return &Dispatcher{Sink: s, Now: time.Now}
}

// Handle dispatches m.
func (d *Dispatcher) Handle(m protocol.Message) {
	protocol.Dispatch(m, d)
}

func (d *Dispatcher) TaskStarted(m protocol.Message, _ protocol.TaskStarted)   { d.emit(m) }
func (d *Dispatcher) TaskFinished(m protocol.Message, _ protocol.TaskFinished) { d.emit(m) }
func (d *Dispatcher) TaskError(m protocol.Message, _ protocol.TaskError)       { d.emit(m) }

func (d *Dispatcher) TaskStatusUpdated(m protocol.Message, _ protocol.TaskStatusUpdated) {
	d.emit(m)
}

func (d *Dispatcher) emit(m protocol.Message) {
	if d.Sink == nil {
		return
	}
	n, ok := For(m)
	if !ok {
		return
	}
	if d.Now != nil {
		n.At = d.Now()
	}
	d.Sink.Notify(n)
}
