package wsclient

import (
	"time"

	"github.com/large-farva/task-tracker/internal/protocol"
)

// Status is the connection state reported to consumers.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// State is a snapshot of the manager's connection record. Zero times mean
// the event has not happened yet.
type State struct {
	Status             Status
	ConnectionCount    int
	LastConnectedAt    time.Time
	LastDisconnectedAt time.Time
	LastMessage        *protocol.Message
	Error              string
}

// IsConnected reports whether the socket is open and authenticated.
func (s State) IsConnected() bool {
	return s.Status == StatusConnected
}

// IsConnecting reports whether a connection attempt is in flight or
// scheduled.
func (s State) IsConnecting() bool {
	return s.Status == StatusConnecting || s.Status == StatusReconnecting
}
