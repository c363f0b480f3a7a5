package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode for frames that are not a JSON
// object or whose payload does not match the shape of its type.
var ErrMalformed = errors.New("malformed message")

type envelope struct {
	Type      Type            `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode parses one inbound frame. Unknown message types decode into an
// Unknown payload without error.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	raw := make(json.RawMessage, len(frame))
	copy(raw, frame)
	msg := Message{Type: env.Type, Timestamp: env.Timestamp, Raw: raw}

	var err error
	switch env.Type {
	case TypeConnection:
		msg.Data, err = decodeData[Connection](env.Data)
	case TypePong:
		msg.Data, err = decodeData[Pong](env.Data)
	case TypeTaskStarted:
		msg.Data, err = decodeData[TaskStarted](env.Data)
	case TypeTaskFinished:
		msg.Data, err = decodeData[TaskFinished](env.Data)
	case TypeTaskStatusUpdated:
		msg.Data, err = decodeData[TaskStatusUpdated](env.Data)
	case TypeTaskError:
		msg.Data, err = decodeData[TaskError](env.Data)
	default:
		msg.Data = Unknown{Kind: env.Type, Data: env.Data}
	}
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s data: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

func decodeData[T Payload](data json.RawMessage) (T, error) {
	var p T
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return p, nil
	}
	err := json.Unmarshal(data, &p)
	return p, err
}

// Event is a message narrowed to one payload type.
type Event[T Payload] struct {
	Timestamp string
	Data      T
}

// As narrows m to payload type T.
func As[T Payload](m Message) (Event[T], bool) {
	p, ok := m.Data.(T)
	if !ok {
		return Event[T]{}, false
	}
	return Event[T]{Timestamp: m.Timestamp, Data: p}, true
}

// Handler has one method per message type. Adding a message type adds a
// method here, so every implementation has to handle it.
type Handler interface {
	Connection(Message, Connection)
	Pong(Message, Pong)
	TaskStarted(Message, TaskStarted)
	TaskFinished(Message, TaskFinished)
	TaskStatusUpdated(Message, TaskStatusUpdated)
	TaskError(Message, TaskError)
	Unknown(Message, Unknown)
}

// Dispatch calls the Handler method matching m's payload.
func Dispatch(m Message, h Handler) {
	switch p := m.Data.(type) {
	case Connection:
		h.Connection(m, p)
	case Pong:
		h.Pong(m, p)
	case TaskStarted:
		h.TaskStarted(m, p)
	case TaskFinished:
		h.TaskFinished(m, p)
	case TaskStatusUpdated:
		h.TaskStatusUpdated(m, p)
	case TaskError:
		h.TaskError(m, p)
	case Unknown:
		h.Unknown(m, p)
	}
}

// NopHandler ignores every message. Embed it to handle a subset.
type NopHandler struct{}

func (NopHandler) Connection(Message, Connection)               {}
func (NopHandler) Pong(Message, Pong)                           {}
func (NopHandler) TaskStarted(Message, TaskStarted)             {}
func (NopHandler) TaskFinished(Message, TaskFinished)           {}
func (NopHandler) TaskStatusUpdated(Message, TaskStatusUpdated) {}
func (NopHandler) TaskError(Message, TaskError)                 {}
func (NopHandler) Unknown(Message, Unknown)                     {}
