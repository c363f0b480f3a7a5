package wsclient

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
)

// CoderDialer opens connections with coder/websocket.
type CoderDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

func (d CoderDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, orDefault(d.HandshakeTimeout, 10*time.Second))
	defer cancel()

	c, _, err := websocket.Dial(dctx, url, nil)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}

	rctx, rcancel := context.WithCancel(context.Background())
	return &coderConn{
		c:            c,
		ctx:          rctx,
		cancel:       rcancel,
		writeTimeout: orDefault(d.WriteTimeout, 3*time.Second),
	}, nil
}

type coderConn struct {
	c            *websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
}

func (c *coderConn) ReadMessage() ([]byte, error) {
	_, data, err := c.c.Read(c.ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, err
	}
	return data, nil
}

func (c *coderConn) WriteMessage(data []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return c.c.Write(ctx, websocket.MessageText, data)
}

// Close returns immediately; the close handshake finishes in the
// background.
func (c *coderConn) Close(code int, reason string) error {
	go func() {
		_ = c.c.Close(websocket.StatusCode(code), reason)
		c.cancel()
	}()
	return nil
}
