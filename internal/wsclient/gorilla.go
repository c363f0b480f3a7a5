package wsclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaDialer opens connections with gorilla/websocket.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: orDefault(d.HandshakeTimeout, 10*time.Second),
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{c: c, writeTimeout: orDefault(d.WriteTimeout, 3*time.Second)}, nil
}

type gorillaConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration
}

func (g *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.c.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return nil, err
	}
	return data, nil
}

func (g *gorillaConn) WriteMessage(data []byte) error {
	_ = g.c.SetWriteDeadline(time.Now().Add(g.writeTimeout))
	return g.c.WriteMessage(websocket.TextMessage, data)
}

func (g *gorillaConn) Close(code int, reason string) error {
	_ = g.c.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(1*time.Second),
	)
	return g.c.Close()
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
