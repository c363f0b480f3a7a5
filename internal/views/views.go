// Package views provides typed, read-only projections over a live hub for
// display code.
//
// Every function panics with ErrNotLive when called with a nil hub or one
// whose Run has returned. Reading a hub outside its lifetime is a
// programming error.
package views

import (
	"errors"
	"time"

	"github.com/large-farva/task-tracker/internal/hub"
	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/wsclient"
)

var ErrNotLive = errors.New("views: hub is not running")

func mustLive(h *hub.Hub) {
	if !h.Live() {
		panic(ErrNotLive)
	}
}

// Last returns the most recent message with payload T.
func Last[T protocol.Payload](h *hub.Hub) (protocol.Event[T], bool) {
	mustLive(h)

	if m, ok := h.LastMessage(); ok {
		if ev, ok := protocol.As[T](m); ok {
			return ev, true
		}
	}
	hist := h.History()
	for i := len(hist) - 1; i >= 0; i-- {
		if ev, ok := protocol.As[T](hist[i]); ok {
			return ev, true
		}
	}
	return protocol.Event[T]{}, false
}

// History returns every message in history with payload T, oldest first.
func History[T protocol.Payload](h *hub.Hub) []protocol.Event[T] {
	mustLive(h)

	var out []protocol.Event[T]
	for _, m := range h.History() {
		if ev, ok := protocol.As[T](m); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Info is the connection summary shown by status displays.
type Info struct {
	Status             wsclient.Status
	IsConnected        bool
	IsConnecting       bool
	Error              string
	ConnectionCount    int
	LastConnectedAt    time.Time
	LastDisconnectedAt time.Time

	UptimeSeconds    int
	TotalConnections int
	MessagesReceived int
	HistoryLen       int
}

// Connection summarises the hub's connection state and statistics.
func Connection(h *hub.Hub) Info {
	mustLive(h)

	s := h.State()
	st := h.Stats()
	return Info{
		Status:             s.Status,
		IsConnected:        s.IsConnected(),
		IsConnecting:       s.IsConnecting(),
		Error:              s.Error,
		ConnectionCount:    s.ConnectionCount,
		LastConnectedAt:    s.LastConnectedAt,
		LastDisconnectedAt: s.LastDisconnectedAt,
		UptimeSeconds:      st.UptimeSeconds,
		TotalConnections:   st.TotalConnections,
		MessagesReceived:   st.MessagesReceived,
		HistoryLen:         len(h.History()),
	}
}
