package wsclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Close codes used by the manager.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

// Dialer opens one WebSocket connection.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is an open WebSocket connection. ReadMessage is called from a single
// reader goroutine; WriteMessage and Close are called from the manager
// loop only.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// CloseError is returned by ReadMessage when the peer sent a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed with code %d", e.Code)
	}
	return fmt.Sprintf("websocket closed with code %d: %s", e.Code, e.Reason)
}

func isNormalClose(code int) bool {
	return code == CloseNormal || code == CloseGoingAway
}

// BuildURL appends the api_key and project query parameters to base. HTTP
// schemes are mapped to their WebSocket equivalents.
func BuildURL(base, apiKey, project string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream url %q has no host", base)
	}

	q := u.Query()
	q.Set("api_key", apiKey)
	q.Set("project", project)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redactURL hides the api key so connection URLs can be logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Get("api_key") != "" {
		q.Set("api_key", "***")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
