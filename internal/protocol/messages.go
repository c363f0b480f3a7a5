// Package protocol defines the typed messages that flow over the task
// notification WebSocket. Inbound frames share a type/timestamp/data
// envelope; the data payload has a fixed shape per message type.
package protocol

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of message carried by a frame.
type Type string

const (
	TypeConnection        Type = "connection"
	TypePong              Type = "pong"
	TypeTaskStarted       Type = "task_started"
	TypeTaskFinished      Type = "task_finished"
	TypeTaskStatusUpdated Type = "task_status_updated"
	TypeTaskError         Type = "task_error"

	// TypePing is outbound only.
	TypePing Type = "ping"
)

// ConnectionStatus is the status reported by a connection message.
type ConnectionStatus string

const (
	ConnectionConnected     ConnectionStatus = "connected"
	ConnectionAuthenticated ConnectionStatus = "authenticated"
	ConnectionError         ConnectionStatus = "error"
)

// TaskResult is the terminal status reported by task_finished.
type TaskResult string

const (
	TaskCompleted TaskResult = "completed"
	TaskFailed    TaskResult = "failed"
)

// Message is one decoded inbound frame. Data always holds one of the
// payload types in this package; Raw keeps the frame as received.
type Message struct {
	Type      Type
	Timestamp string
	Data      Payload
	Raw       json.RawMessage
}

// Payload is implemented only by the payload types in this package.
type Payload interface {
	MessageType() Type
	sealed()
}

// Connection is sent by the server when the socket opens and again once
// the api key has been checked.
type Connection struct {
	Status      ConnectionStatus `json:"status"`
	Message     string           `json:"message"`
	ProjectName string           `json:"project_name,omitempty"`
	UserID      string           `json:"user_id,omitempty"`
}

// Pong answers a client ping.
type Pong struct {
	Timestamp string `json:"timestamp"`
}

type TaskStarted struct {
	TaskID      string `json:"task_id"`
	ProjectName string `json:"project_name"`
	AgentName   string `json:"agent_name"`
	Title       string `json:"title"`
	StartedAt   string `json:"started_at"`
}

type TaskFinished struct {
	TaskID          string          `json:"task_id"`
	ProjectName     string          `json:"project_name"`
	AgentName       string          `json:"agent_name"`
	Title           string          `json:"title"`
	Status          TaskResult      `json:"status"`
	FinishedAt      string          `json:"finished_at"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
}

type TaskStatusUpdated struct {
	TaskID      string   `json:"task_id"`
	ProjectName string   `json:"project_name"`
	AgentName   string   `json:"agent_name"`
	Title       string   `json:"title"`
	OldStatus   string   `json:"old_status"`
	NewStatus   string   `json:"new_status"`
	Progress    *float64 `json:"progress,omitempty"`
	UpdatedAt   string   `json:"updated_at"`
}

type TaskError struct {
	TaskID       string `json:"task_id"`
	ProjectName  string `json:"project_name"`
	AgentName    string `json:"agent_name"`
	Title        string `json:"title"`
	ErrorMessage string `json:"error_message"`
	ErrorType    string `json:"error_type,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

// Unknown holds a message whose type this client does not know. It is
// kept rather than rejected so newer servers do not break older clients.
type Unknown struct {
	Kind Type
	Data json.RawMessage
}

func (Connection) MessageType() Type        { return TypeConnection }
func (Pong) MessageType() Type              { return TypePong }
func (TaskStarted) MessageType() Type       { return TypeTaskStarted }
func (TaskFinished) MessageType() Type      { return TypeTaskFinished }
func (TaskStatusUpdated) MessageType() Type { return TypeTaskStatusUpdated }
func (TaskError) MessageType() Type         { return TypeTaskError }
func (u Unknown) MessageType() Type         { return u.Kind }

func (Connection) sealed()        {}
func (Pong) sealed()              {}
func (TaskStarted) sealed()       {}
func (TaskFinished) sealed()      {}
func (TaskStatusUpdated) sealed() {}
func (TaskError) sealed()         {}
func (Unknown) sealed()           {}

// PingEnvelope is the heartbeat frame sent while connected.
type PingEnvelope struct {
	Type      Type   `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Ping returns a ping envelope stamped with t.
func Ping(t time.Time) PingEnvelope {
	return PingEnvelope{Type: TypePing, Timestamp: FormatTS(t)}
}

// NowTS returns the current UTC time in the timestamp format used on the
// wire.
func NowTS() string {
	return FormatTS(time.Now())
}

// FormatTS renders t as an RFC 3339 UTC timestamp with milliseconds.
func FormatTS(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
